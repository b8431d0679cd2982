// Package weaviate provides a driven.VectorStore backed by a Weaviate server.
// Each collection maps to one class with the "none" vectorizer; collection
// metadata is kept as JSON in the class description.
package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Defaults.
const (
	DefaultHost           = "localhost:8080"
	DefaultScheme         = "http"
	DefaultStartupTimeout = 30 * time.Second
)

// metaPrefix marks class descriptions written by this store.
const metaPrefix = "tender:"

// idNamespace derives object UUIDs from chunk identities.
var idNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8a-9f57-2c4e8d1b7a90")

// Object property names.
const (
	propChunkID = "chunkId"
	propContent = "content"
	propSource  = "source"
	propSection = "section"
	propPage    = "page"
)

// Config holds connection settings.
type Config struct {
	Host   string
	Scheme string
	APIKey string

	// StartupTimeout bounds the readiness wait in Open.
	StartupTimeout time.Duration
}

// Store implements driven.VectorStore on Weaviate.
type Store struct {
	client *weaviate.Client
	log    *zap.Logger
}

// NewStore wraps an existing client.
func NewStore(client *weaviate.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: logger.OrNop(log)}
}

// Open connects to Weaviate and waits, with exponential backoff, until the
// server reports ready.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultScheme
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}

	wCfg := weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme}
	if cfg.APIKey != "" {
		wCfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: weaviate client: %w", domain.ErrStoreUnavailable, err)
	}

	s := NewStore(client, log)

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = cfg.StartupTimeout
	if err := backoff.Retry(func() error {
		err := s.Ping(ctx)
		if err != nil {
			s.log.Debug("weaviate not ready", zap.String("host", cfg.Host), zap.Error(err))
		}
		return err
	}, backoff.WithContext(eb, ctx)); err != nil {
		return nil, err
	}
	return s, nil
}

// Ping checks the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: weaviate: %w", domain.ErrStoreUnavailable, err)
	}
	if !ready {
		return fmt.Errorf("%w: weaviate is not ready", domain.ErrStoreUnavailable)
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// EnsureCollection creates the class for c or checks the existing one.
func (s *Store) EnsureCollection(ctx context.Context, c domain.Collection) error {
	existing, err := s.GetCollection(ctx, c.Name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		if !existing.Compatible(c) {
			return fmt.Errorf("%w: collection %q holds %s/%s (%d dims), got %s/%s (%d dims)",
				domain.ErrCollectionMismatch, c.Name,
				existing.Provider, existing.Model, existing.Dimensions,
				c.Provider, c.Model, c.Dimensions)
		}
		return nil
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	desc, err := encodeMeta(c)
	if err != nil {
		return err
	}

	class := &models.Class{
		Class:       ClassName(c.Name),
		Description: desc,
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: propChunkID, DataType: []string{"text"}, Tokenization: "field"},
			{Name: propContent, DataType: []string{"text"}},
			{Name: propSource, DataType: []string{"text"}, Tokenization: "field"},
			{Name: propSection, DataType: []string{"text"}, Tokenization: "field"},
			{Name: propPage, DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return classify(err, "creating class "+class.Class)
	}
	s.log.Debug("created weaviate class", zap.String("collection", c.Name), zap.String("class", class.Class))
	return nil
}

// UpsertBatch writes records through the batch endpoint. Objects with an
// existing UUID are replaced.
func (s *Store) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	cls := ClassName(collection)

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objects = append(objects, &models.Object{
			Class:      cls,
			ID:         ObjectID(r.ID),
			Properties: properties(r.Chunk, r.ID),
			Vector:     models.C11yVector(r.Vector),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return classify(err, "batch upsert")
	}

	var failed []string
	for _, item := range resp {
		if item.Result == nil || item.Result.Errors == nil {
			continue
		}
		for _, e := range item.Result.Errors.Error {
			failed = append(failed, e.Message)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: batch upsert: %d object errors: %s",
			domain.ErrPersistence, len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// Insert creates one object, failing with ErrDuplicate when its UUID exists.
func (s *Store) Insert(ctx context.Context, collection string, r domain.Record) error {
	_, err := s.client.Data().Creator().
		WithClassName(ClassName(collection)).
		WithID(string(ObjectID(r.ID))).
		WithProperties(properties(r.Chunk, r.ID)).
		WithVector(r.Vector).
		Do(ctx)
	if err != nil {
		var werr *fault.WeaviateClientError
		if errors.As(err, &werr) && werr.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(werr.Msg, "already exists") {
			return fmt.Errorf("%w: %s", domain.ErrDuplicate, r.ID)
		}
		return classify(err, "insert "+r.ID)
	}
	return nil
}

// Flush is a no-op; acknowledged writes are durable.
func (s *Store) Flush(context.Context, string) error {
	return nil
}

// Search runs a nearVector query.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	cls := ClassName(collection)

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	fields := []graphql.Field{
		{Name: propChunkID},
		{Name: propContent},
		{Name: propSource},
		{Name: propSection},
		{Name: propPage},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(cls).
		WithNearVector(nearVector).
		WithLimit(opts.EffectiveLimit()).
		WithFields(fields...)
	if where := whereFilter(opts); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, classify(err, "search")
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("%w: graphql: %s", domain.ErrPersistence, strings.Join(msgs, "; "))
	}

	var results []domain.SearchResult
	data, _ := res.Data["Get"].(map[string]any)
	rows, _ := data[cls].([]any)
	for _, row := range rows {
		props, ok := row.(map[string]any)
		if !ok {
			continue
		}
		c := domain.Chunk{}
		c.Content, _ = props[propContent].(string)
		c.Source, _ = props[propSource].(string)
		c.Section, _ = props[propSection].(string)
		if page, ok := props[propPage].(float64); ok {
			p := int(page)
			c.Page = &p
		}
		id, _ := props[propChunkID].(string)
		if id == "" {
			id = c.ID()
		}

		var score float64
		if additional, ok := props["_additional"].(map[string]any); ok {
			if distance, ok := additional["distance"].(float64); ok {
				score = 1 - distance
			}
		}
		results = append(results, domain.SearchResult{ID: id, Chunk: c, Score: score})
	}
	return domain.RankResults(results, opts.EffectiveLimit()), nil
}

// GetCollection reads the class metadata and counts its objects.
func (s *Store) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	cls := ClassName(name)
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(cls).Do(ctx)
	if err != nil {
		return nil, classify(err, "checking class "+cls)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %q", domain.ErrNotFound, name)
	}

	class, err := s.client.Schema().ClassGetter().WithClassName(cls).Do(ctx)
	if err != nil {
		return nil, classify(err, "reading class "+cls)
	}
	c, ok := decodeMeta(class.Description)
	if !ok {
		return nil, fmt.Errorf("%w: class %s is not a tender collection", domain.ErrCollectionMismatch, cls)
	}

	count, err := s.count(ctx, cls)
	if err != nil {
		return nil, err
	}
	c.Count = count
	return &c, nil
}

// ListCollections returns every class written by this store.
func (s *Store) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	dump, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, classify(err, "reading schema")
	}

	var out []domain.Collection
	for _, class := range dump.Classes {
		c, ok := decodeMeta(class.Description)
		if !ok {
			continue
		}
		count, err := s.count(ctx, class.Class)
		if err != nil {
			return nil, err
		}
		c.Count = count
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteCollection drops the class.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if _, err := s.GetCollection(ctx, name); err != nil {
		return err
	}
	if err := s.client.Schema().ClassDeleter().WithClassName(ClassName(name)).Do(ctx); err != nil {
		return classify(err, "deleting class")
	}
	return nil
}

// Reset drops every class written by this store. Other classes are kept.
func (s *Store) Reset(ctx context.Context) error {
	collections, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, c := range collections {
		if err := s.client.Schema().ClassDeleter().WithClassName(ClassName(c.Name)).Do(ctx); err != nil {
			return classify(err, "deleting class")
		}
	}
	return nil
}

func (s *Store) count(ctx context.Context, cls string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(cls).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, classify(err, "counting "+cls)
	}

	agg, _ := res.Data["Aggregate"].(map[string]any)
	rows, _ := agg[cls].([]any)
	if len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]any)
	meta, _ := row["meta"].(map[string]any)
	n, _ := meta["count"].(float64)
	return int(n), nil
}

// ClassName maps a collection name onto a valid Weaviate class name.
func ClassName(collection string) string {
	var b strings.Builder
	for i, r := range collection {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if i == 0 {
				r = unicode.ToUpper(r)
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		name = "C_" + name
	}
	return name
}

// ObjectID derives the object UUID from a chunk identity.
func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(idNamespace, []byte(chunkID)).String())
}

func properties(c domain.Chunk, id string) map[string]any {
	props := map[string]any{
		propChunkID: id,
		propContent: c.Content,
		propSource:  c.Source,
		propSection: c.Section,
	}
	if c.Page != nil {
		props[propPage] = *c.Page
	}
	return props
}

func whereFilter(opts domain.SearchOptions) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if len(opts.Sections) > 0 {
		upper := make([]string, len(opts.Sections))
		for i, s := range opts.Sections {
			upper[i] = strings.ToUpper(s)
		}
		operands = append(operands, anyOf(propSection, upper))
	}
	if len(opts.Sources) > 0 {
		operands = append(operands, anyOf(propSource, opts.Sources))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func anyOf(prop string, values []string) *filters.WhereBuilder {
	if len(values) == 1 {
		return filters.Where().WithPath([]string{prop}).WithOperator(filters.Equal).WithValueText(values[0])
	}
	operands := make([]*filters.WhereBuilder, 0, len(values))
	for _, v := range values {
		operands = append(operands, filters.Where().WithPath([]string{prop}).WithOperator(filters.Equal).WithValueText(v))
	}
	return filters.Where().WithOperator(filters.Or).WithOperands(operands)
}

type classMeta struct {
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	CreatedAt  time.Time `json:"created_at"`
}

func encodeMeta(c domain.Collection) (string, error) {
	data, err := json.Marshal(classMeta{
		Name:       c.Name,
		Provider:   c.Provider,
		Model:      c.Model,
		Dimensions: c.Dimensions,
		CreatedAt:  c.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encoding collection metadata: %w", err)
	}
	return metaPrefix + string(data), nil
}

func decodeMeta(desc string) (domain.Collection, bool) {
	raw, ok := strings.CutPrefix(desc, metaPrefix)
	if !ok {
		return domain.Collection{}, false
	}
	var m classMeta
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.Collection{}, false
	}
	return domain.Collection{
		Name:       m.Name,
		Provider:   m.Provider,
		Model:      m.Model,
		Dimensions: m.Dimensions,
		CreatedAt:  m.CreatedAt,
	}, true
}

// classify maps client errors onto domain sentinels. Transport failures
// mean the store is unreachable; status errors fail the operation only.
func classify(err error, op string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var werr *fault.WeaviateClientError
	if errors.As(err, &werr) && werr.IsUnexpectedStatusCode {
		if werr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: weaviate %s: %s", domain.ErrNotFound, op, werr.Msg)
		}
		return fmt.Errorf("%w: weaviate %s (status %d): %s", domain.ErrPersistence, op, werr.StatusCode, werr.Msg)
	}
	return fmt.Errorf("%w: weaviate %s: %w", domain.ErrStoreUnavailable, op, err)
}
