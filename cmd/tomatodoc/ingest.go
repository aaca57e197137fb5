package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/chunker"
	"github.com/leafwise/tomatodoc/internal/config"
	"github.com/leafwise/tomatodoc/internal/corpus"
	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/index"
	logpkg "github.com/leafwise/tomatodoc/internal/logger"
	"github.com/leafwise/tomatodoc/internal/metrics"
)

func ingestCmd() *cobra.Command {
	var corpusDir string
	var indexPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the vector index from the knowledge base",
		Long: "Reads knowledge-base markdown files, splits them into overlapping\n" +
			"chunks, embeds every chunk, and writes the versioned index file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), corpusDir, indexPath)
		},
	}

	cmd.Flags().StringVar(&corpusDir, "corpus", "", "knowledge base directory (default from config)")
	cmd.Flags().StringVar(&indexPath, "out", "", "index output path (default from config)")
	return cmd
}

func runIngest(ctx context.Context, corpusDir, indexPath string) error {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if corpusDir == "" {
		corpusDir = cfg.Corpus.Dir
	}
	if indexPath == "" {
		indexPath = cfg.Index.Path
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register()

	start := time.Now()

	docs, err := corpus.NewLoader().Load(corpusDir)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	logger.Info("Corpus loaded",
		zap.String("dir", corpusDir),
		zap.Int("documents", len(docs)))

	ck, err := chunker.New(chunker.Config{
		Size:    cfg.Index.ChunkSize,
		Overlap: cfg.Index.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("create chunker: %w", err)
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, ck.Chunk(doc)...)
	}
	logger.Info("Documents chunked",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", cfg.Index.ChunkSize),
		zap.Int("chunk_overlap", cfg.Index.ChunkOverlap))

	embedder := buildEmbedder(cfg, logger)

	ix, err := index.Build(ctx, chunks, index.BuildParams{
		Embedder:   embedder,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if dir := filepath.Dir(indexPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}
	if err := ix.Save(indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	logger.Info("Index written",
		zap.String("path", indexPath),
		zap.Int("chunks", ix.Size()),
		zap.Int("dimensions", ix.Dimensions()),
		zap.String("model", cfg.Embedding.Model),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
