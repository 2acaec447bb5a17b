package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/cli"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/config"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/language"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/logging"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

type linkArgs struct {
	kind       translation.Kind
	taxonomy   string
	sourceID   int64
	sourceLang string
	targetID   int64
	targetLang string
}

func runLink(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: langsync link taxonomy|posts [flags]")
		return 2
	}

	var kind translation.Kind
	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case string(translation.KindTaxonomy), "terms":
		kind = translation.KindTaxonomy
	case string(translation.KindPosts), "post":
		kind = translation.KindPosts
	default:
		fmt.Fprintf(os.Stderr, "unknown link target: %s (want taxonomy or posts)\n", args[0])
		return 2
	}

	fs := flag.NewFlagSet("link "+string(kind), flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Second, "Link operation timeout")
	taxonomy := fs.String("taxonomy", "", "Taxonomy both terms belong to (taxonomy only)")
	sourceID := fs.Int64("source", 0, "Source object ID")
	sourceLang := fs.String("source-lang", "", "Source language slug")
	targetID := fs.Int64("target", 0, "Target object ID")
	targetLang := fs.String("target-lang", "", "Target language slug")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, code := bootstrap(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("link failed to open store")
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer b.close()

	result, err := linkObjects(ctx, b.syncHandler(logger), linkArgs{
		kind:       kind,
		taxonomy:   *taxonomy,
		sourceID:   *sourceID,
		sourceLang: *sourceLang,
		targetID:   *targetID,
		targetLang: *targetLang,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Link failed: %v\n", err)
		if serr, ok := syncer.AsError(err); ok && serr.HTTPStatus() < 500 {
			return 2
		}
		return 1
	}

	if err := writeJSON(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write result: %v\n", err)
		return 1
	}
	return 0
}

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Store query timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, code := bootstrap(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("languages failed to open store")
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer b.close()

	languages, err := b.syncHandler(logger).Languages(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load languages: %v\n", err)
		return 1
	}
	if err := printLanguages(os.Stdout, languages); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write languages: %v\n", err)
		return 1
	}
	return 0
}

func bootstrap(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), 1
	}

	logger, err := logging.NewWithWriter(os.Stderr, cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), 1
	}
	return cfg, logger, 0
}

func linkObjects(ctx context.Context, h *syncer.Handler, args linkArgs) (*syncer.Result, error) {
	actorCtx := syncer.WithActor(ctx, syncer.Actor{Username: "cli", ClientIP: "local"})
	switch args.kind {
	case translation.KindTaxonomy:
		return h.SyncTaxonomyTerms(actorCtx, syncer.TaxonomyRequest{
			Taxonomy:     args.taxonomy,
			SourceTermID: args.sourceID,
			SourceLang:   cliLangSlug(args.sourceLang),
			TargetTermID: args.targetID,
			TargetLang:   cliLangSlug(args.targetLang),
		})
	case translation.KindPosts:
		return h.SyncPosts(actorCtx, syncer.PostRequest{
			SourcePostID: args.sourceID,
			SourceLang:   cliLangSlug(args.sourceLang),
			TargetPostID: args.targetID,
			TargetLang:   cliLangSlug(args.targetLang),
		})
	default:
		return nil, fmt.Errorf("unsupported link kind %q", args.kind)
	}
}

// cliLangSlug accepts "EN" or "pt_BR" on the command line. Values that do
// not normalize are passed through for the handler to reject.
func cliLangSlug(raw string) string {
	if slug := language.NormalizeSlug(raw); slug != "" {
		return slug
	}
	return raw
}

func printLanguages(w io.Writer, languages []translation.Language) error {
	for _, lang := range languages {
		if _, err := fmt.Fprintf(w, "%-8s %-12s %-8s %s\n", lang.Slug, lang.Locale, lang.Flag, lang.Name); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
