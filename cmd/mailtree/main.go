// Command mailtree runs the mailbox Lambda handlers.
//
// Environment:
//
//	MAILTREE_HANDLER: api|cascade (default api)
//	MAILTREE_STORE: dynamodb|memory (default dynamodb; cascade requires dynamodb)
//	MAILTREE_MAILBOX_TABLE, MAILTREE_PATH_TABLE, MAILTREE_RELATIONSHIP_TABLE,
//	MAILTREE_SUBSCRIPTION_TABLE: table names (defaults from store.DefaultConfig)
//	MAILTREE_NUM_SHARDS: relationship shards per parent (default 1)
//	MAILTREE_MAX_NAME_LENGTH: longest full mailbox name (default 200)
//	MAILTREE_DELIMITER: single-character path delimiter (default /)
//	MAILTREE_LOG_LEVEL: debug|info|warn|error (default info)
//	MAILTREE_PUSHGATEWAY_URL: Pushgateway the api handler pushes metrics to
//	after each invocation (default unset, metrics are not published)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/mailtree/creation"
	"github.com/jacentio/mailtree/internal/metrics"
	"github.com/jacentio/mailtree/jmap"
	"github.com/jacentio/mailtree/store"
	"github.com/jacentio/mailtree/store/memory"
	"github.com/jacentio/mailtree/stream"
)

const (
	handlerAPI     = "api"
	handlerCascade = "cascade"

	driverDynamoDB = "dynamodb"
	driverMemory   = "memory"
)

var errCascadeNeedsDynamoDB = errors.New("cascade handler requires the dynamodb store")

type settings struct {
	handler     string
	driver      string
	store       store.Config
	delimiter   rune
	logLevel    slog.Level
	pushgateway string
}

// loadSettings reads the MAILTREE_* variables through getenv.
func loadSettings(getenv func(string) string) (settings, error) {
	s := settings{
		handler:   handlerAPI,
		driver:    driverDynamoDB,
		store:     store.DefaultConfig(),
		delimiter: store.DefaultDelimiter,
		logLevel:  slog.LevelInfo,
	}

	if v := getenv("MAILTREE_HANDLER"); v != "" {
		if v != handlerAPI && v != handlerCascade {
			return s, fmt.Errorf("unknown handler %s", v)
		}
		s.handler = v
	}
	if v := getenv("MAILTREE_STORE"); v != "" {
		if v != driverDynamoDB && v != driverMemory {
			return s, fmt.Errorf("unknown store driver %s", v)
		}
		s.driver = v
	}
	if s.handler == handlerCascade && s.driver != driverDynamoDB {
		return s, errCascadeNeedsDynamoDB
	}

	for env, field := range map[string]*string{
		"MAILTREE_MAILBOX_TABLE":      &s.store.MailboxTable,
		"MAILTREE_PATH_TABLE":         &s.store.PathTable,
		"MAILTREE_RELATIONSHIP_TABLE": &s.store.RelationshipTable,
		"MAILTREE_SUBSCRIPTION_TABLE": &s.store.SubscriptionTable,
	} {
		if v := getenv(env); v != "" {
			*field = v
		}
	}

	for env, field := range map[string]*int{
		"MAILTREE_NUM_SHARDS":      &s.store.NumShards,
		"MAILTREE_MAX_NAME_LENGTH": &s.store.MaxNameLength,
	} {
		if v := getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return s, fmt.Errorf("%s must be a positive integer, got %q", env, v)
			}
			*field = n
		}
	}

	if v := getenv("MAILTREE_DELIMITER"); v != "" {
		if utf8.RuneCountInString(v) != 1 {
			return s, fmt.Errorf("MAILTREE_DELIMITER must be a single character, got %q", v)
		}
		s.delimiter, _ = utf8.DecodeRuneInString(v)
	}

	if v := getenv("MAILTREE_LOG_LEVEL"); v != "" {
		if err := s.logLevel.UnmarshalText([]byte(v)); err != nil {
			return s, fmt.Errorf("MAILTREE_LOG_LEVEL: %w", err)
		}
	}

	if v := getenv("MAILTREE_PUSHGATEWAY_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return s, fmt.Errorf("MAILTREE_PUSHGATEWAY_URL must be an absolute URL, got %q", v)
		}
		s.pushgateway = v
	}

	return s, nil
}

// backend is what the API handler needs from a store.
type backend interface {
	creation.MailboxStore
	creation.SubscriptionRegistry
}

// openBackend connects the configured store. The stream store is nil for
// the memory driver.
func openBackend(ctx context.Context, s settings) (backend, stream.Store, error) {
	switch s.driver {
	case driverMemory:
		return memory.New(s.store), nil, nil
	case driverDynamoDB:
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		st := store.New(dynamodb.NewFromConfig(awsCfg), s.store)
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %s", s.driver)
	}
}

func run(ctx context.Context) error {
	s, err := loadSettings(os.Getenv)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: s.logLevel}))
	slog.SetDefault(logger)

	mailboxes, streamStore, err := openBackend(ctx, s)
	if err != nil {
		return err
	}

	switch s.handler {
	case handlerCascade:
		lambda.Start(stream.NewHandler(streamStore, logger).HandleCascadeDelete)
	default:
		reg := prometheus.NewRegistry()
		sink, err := metrics.NewSink(reg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		processor := creation.NewProcessor(mailboxes, mailboxes, sink, logger)
		handler := jmap.NewHandler(processor, s.delimiter, logger).HandleSetMailboxes
		if s.pushgateway != "" {
			pusher := metrics.NewPusher(s.pushgateway, uuid.NewString(), reg)
			handler = pushAfter(handler, pusher, logger)
		}
		lambda.Start(handler)
	}
	return nil
}

// pushAfter wraps next so metrics are pushed once each invocation returns.
// A failed push is logged and does not fail the invocation.
func pushAfter[Req, Resp any](next func(context.Context, Req) (Resp, error), p *metrics.Pusher, logger *slog.Logger) func(context.Context, Req) (Resp, error) {
	return func(ctx context.Context, req Req) (Resp, error) {
		resp, err := next(ctx, req)
		if pushErr := p.Push(ctx); pushErr != nil {
			logger.Warn("failed to push metrics", "error", pushErr)
		}
		return resp, err
	}
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("mailtree failed to start", "error", err)
		os.Exit(1)
	}
}
