package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

// Elasticsearch index names, prefixed per environment via config
const (
	CasesIndex      = "support-cases"
	CaseEventsIndex = "case-events"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexCase indexes the current shape of a support case. The document ID
// is the aggregate ID, so re-indexing after a replay overwrites rather
// than duplicates.
func (c *ElasticClient) IndexCase(ctx context.Context, row *models.CaseReadModel) error {
	var tags []string
	if len(row.Tags) > 0 {
		if err := json.Unmarshal(row.Tags, &tags); err != nil {
			return errors.Wrap(err, "failed to unmarshal case tags")
		}
	}

	doc := map[string]interface{}{
		"aggregate_id":            row.AggregateID,
		"company_id":              row.CompanyID,
		"product_id":              row.ProductID,
		"title":                   row.Title,
		"description":             row.Description,
		"category":                row.Category,
		"source":                  row.Source,
		"status":                  row.Status,
		"severity":                row.Severity,
		"impact":                  row.Impact,
		"owner_id":                row.OwnerID,
		"owner_name":              row.OwnerName,
		"tags":                    tags,
		"reopen_count":            row.ReopenCount,
		"opened_at":               row.OpenedAt,
		"resolved_at":             row.ResolvedAt,
		"closed_at":               row.ClosedAt,
		"is_resolved":             row.IsResolved,
		"is_closed":               row.IsClosed,
		"first_response_breached": row.FirstResponseBreached,
		"resolution_breached":     row.ResolutionBreached,
	}

	return c.index(ctx, CasesIndex, row.AggregateID, doc)
}

// IndexEvent indexes a recorded event for audit search
func (c *ElasticClient) IndexEvent(ctx context.Context, ev domain.Event) error {
	doc := map[string]interface{}{
		"event_id":       ev.ID,
		"aggregate_type": ev.AggregateType,
		"aggregate_id":   ev.AggregateID,
		"sequence":       ev.Sequence,
		"global_seq":     ev.GlobalSeq,
		"type":           ev.Type,
		"payload":        ev.Payload,
		"actor_type":     ev.Actor.Type,
		"actor_id":       ev.Actor.ID,
		"occurred_at":    ev.OccurredAt,
		"recorded_at":    ev.RecordedAt,
	}

	return c.index(ctx, CaseEventsIndex, ev.ID, doc)
}

func (c *ElasticClient) index(ctx context.Context, index, docID string, doc interface{}) error {
	docJson, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, index),
		DocumentID: docID,
		Body:       bytes.NewReader(docJson),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	return nil
}

// SearchCases searches the case index with the given query body
func (c *ElasticClient) SearchCases(ctx context.Context, query map[string]interface{}) ([]map[string]interface{}, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{config.FormatIndex(c.config, CasesIndex)},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}
