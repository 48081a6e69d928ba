// Package s3source is a Querier over S3 object listings.
//
// A target names a key prefix, treated as a directory: "reports" lists the
// objects under "reports/", and "/" lists the whole bucket. Each object is
// a row with the columns key, size, etag and last_modified, ordered by key
// unless the query names a sort order. S3 has no change feed of its own, so
// pair the Querier with a Notifier through source.Compose.
//
// The S3 client is created on first use. Listings run through a circuit
// breaker so an unreachable endpoint fails fast.
package s3source

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/source"
)

// Columns are the columns of every listing row.
var Columns = []string{"key", "size", "etag", "last_modified"}

// Option configures a Querier.
type Option func(*Querier)

// WithClient lists through api instead of a client built from the config.
func WithClient(api awss3.ListObjectsV2APIClient) Option {
	return func(q *Querier) {
		q.client = api
		q.injected = true
	}
}

// Querier lists objects of one bucket.
type Querier struct {
	*component.BaseLazyComponent

	cfg      Config
	mu       sync.RWMutex
	client   awss3.ListObjectsV2APIClient
	injected bool
	breaker  *resilience.CircuitBreaker
	log      *logger.Logger
}

var (
	_ source.Querier      = (*Querier)(nil)
	_ component.Component = (*Querier)(nil)
)

// New creates a Querier. No connection is made until the first query or
// Start.
func New(cfg Config, opts ...Option) (*Querier, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q := &Querier{cfg: cfg, log: logger.Get("s3source")}
	for _, opt := range opts {
		opt(q)
	}

	breaker := resilience.DefaultCircuitBreakerConfig("s3:" + cfg.Bucket)
	breaker.MaxFailures = cfg.BreakerFailures
	breaker.Timeout = cfg.BreakerTimeout
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		q.log.Warn("circuit breaker state changed", logger.Fields(
			"breaker", name, "from", from.String(), "to", to.String(),
		))
	}
	q.breaker = resilience.NewCircuitBreaker(breaker)

	q.BaseLazyComponent = component.NewBaseLazyComponent("s3:"+cfg.Bucket, q.connect).
		WithHealthCheck(func(context.Context) error {
			if q.breaker.State() == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
			return nil
		}).
		WithCloser(func() error {
			q.mu.Lock()
			defer q.mu.Unlock()
			if !q.injected {
				q.client = nil
			}
			return nil
		})
	return q, nil
}

func (q *Querier) connect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client != nil {
		return nil
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(q.cfg.Region),
		awsconfig.WithRetryMaxAttempts(q.cfg.MaxAttempts),
	}
	if q.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(q.cfg.AccessKey, q.cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return errors.ConnectionFailed("s3", err)
	}

	q.client = awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if q.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(q.cfg.Endpoint)
			o.UsePathStyle = true
		}
		if q.cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	q.log.Info("s3 client created", logger.Fields("bucket", q.cfg.Bucket, "region", q.cfg.Region))
	return nil
}

// Start creates the S3 client.
func (q *Querier) Start(ctx context.Context) error {
	return q.Initialize(ctx)
}

// Stop releases the client; the next query creates a new one.
func (q *Querier) Stop(context.Context) error {
	return q.Close()
}

// Prefix returns the key prefix listed for target.
func Prefix(target string) string {
	if target == "/" {
		return ""
	}
	return strings.TrimSuffix(target, "/") + "/"
}

// Query lists the objects under q's target and applies its selection, sort
// order and projection.
func (q *Querier) Query(ctx context.Context, query source.Query) (source.Cursor, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := q.Initialize(ctx); err != nil {
		return nil, err
	}

	var rows [][]any
	err := q.breaker.Execute(func() error {
		var err error
		rows, err = q.list(ctx, Prefix(query.Target))
		return err
	})
	switch {
	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return nil, errors.ServiceUnavailable("s3").WithCause(err)
	case err != nil:
		return nil, errors.ExternalServiceError("s3", err)
	}

	if query.SortOrder == "" {
		query.SortOrder = "key"
	}
	return source.Apply(Columns, rows, query)
}

func (q *Querier) list(ctx context.Context, prefix string) ([][]any, error) {
	q.mu.RLock()
	client := q.client
	q.mu.RUnlock()
	if client == nil {
		return nil, errors.Closed("s3 client")
	}

	p := awss3.NewListObjectsV2Paginator(client, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(q.cfg.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(q.cfg.PageSize),
	})
	var rows [][]any
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			var modified any
			if obj.LastModified != nil {
				modified = obj.LastModified.UTC()
			}
			rows = append(rows, []any{
				aws.ToString(obj.Key),
				aws.ToInt64(obj.Size),
				strings.Trim(aws.ToString(obj.ETag), `"`),
				modified,
			})
		}
	}
	q.log.Debug("objects listed", logger.Fields("bucket", q.cfg.Bucket, "prefix", prefix, logger.FieldItems, len(rows)))
	return rows, nil
}
