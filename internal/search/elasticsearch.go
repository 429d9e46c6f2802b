package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"tourbook/internal/config"
	"tourbook/internal/models"
)

// searchFields are the analyzed text fields matched by free-text queries.
var searchFields = []string{
	"user_name^2", "user_email^2",
	"tour_title^2", "tour_destination",
	"hotel_name^2", "room_type",
	"flight_number^3", "airline", "origin", "destination",
}

// ElasticsearchClient maintains the bookings index used by the list
// endpoint's free-text search.
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// BookingDocument is the denormalized booking stored in the index.
type BookingDocument struct {
	ID              int64                `json:"id"`
	UserID          int64                `json:"user_id"`
	Type            models.ResourceKind  `json:"type"`
	ResourceID      int64                `json:"resource_id"`
	Status          models.BookingStatus `json:"status"`
	PaymentStatus   string               `json:"payment_status,omitempty"`
	UserName        string               `json:"user_name,omitempty"`
	UserEmail       string               `json:"user_email,omitempty"`
	TourTitle       string               `json:"tour_title,omitempty"`
	TourDestination string               `json:"tour_destination,omitempty"`
	HotelName       string               `json:"hotel_name,omitempty"`
	RoomType        string               `json:"room_type,omitempty"`
	FlightNumber    string               `json:"flight_number,omitempty"`
	Airline         string               `json:"airline,omitempty"`
	Origin          string               `json:"origin,omitempty"`
	Destination     string               `json:"destination,omitempty"`
	TotalPriceMinor int64                `json:"total_price_minor"`
	BookingDate     time.Time            `json:"booking_date"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func NewBookingDocument(d *models.BookingDetails) BookingDocument {
	doc := BookingDocument{
		ID:              d.ID,
		UserID:          d.UserID,
		Type:            d.Target.Kind,
		ResourceID:      d.Target.ID,
		Status:          d.Status,
		TotalPriceMinor: d.TotalPrice.Minor(),
		BookingDate:     d.BookingDate,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.User != nil {
		doc.UserName = d.User.Name
		doc.UserEmail = d.User.Email
	}
	if d.Payment != nil {
		doc.PaymentStatus = string(d.Payment.Status)
	}
	switch {
	case d.Tour != nil:
		doc.TourTitle = d.Tour.Title
		doc.TourDestination = d.Tour.Destination
	case d.Room != nil:
		doc.HotelName = d.Room.HotelName
		doc.RoomType = d.Room.RoomType
	case d.Flight != nil:
		doc.FlightNumber = d.Flight.FlightNumber
		doc.Airline = d.Flight.Airline
		doc.Origin = d.Flight.Origin
		doc.Destination = d.Flight.Destination
	}
	return doc
}

func NewElasticsearchClient(ctx context.Context, cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
		Transport: &http.Transport{
			ResponseHeaderTimeout: cfg.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := newClient(es, cfg)
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

func newClient(es *elasticsearch.Client, cfg config.ElasticsearchConfig) *ElasticsearchClient {
	if cfg.Index == "" {
		cfg.Index = "bookings"
	}
	return &ElasticsearchClient{client: es, config: cfg}
}

func indexMapping() map[string]interface{} {
	text := func() map[string]interface{} {
		return map[string]interface{}{
			"type": "text",
			"fields": map[string]interface{}{
				"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 256},
			},
		}
	}
	keyword := map[string]interface{}{"type": "keyword"}

	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":                map[string]interface{}{"type": "long"},
				"user_id":           map[string]interface{}{"type": "long"},
				"resource_id":       map[string]interface{}{"type": "long"},
				"type":              keyword,
				"status":            keyword,
				"payment_status":    keyword,
				"user_name":         text(),
				"user_email":        text(),
				"tour_title":        text(),
				"tour_destination":  text(),
				"hotel_name":        text(),
				"room_type":         text(),
				"flight_number":     text(),
				"airline":           text(),
				"origin":            text(),
				"destination":       text(),
				"total_price_minor": map[string]interface{}{"type": "long"},
				"booking_date":      map[string]interface{}{"type": "date"},
				"updated_at":        map[string]interface{}{"type": "date"},
			},
		},
	}
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	body, err := json.Marshal(indexMapping())
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(body),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

func buildSearchQuery(query string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"_source": false,
		"size":    limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    searchFields,
				"fuzziness": "AUTO",
				"lenient":   true,
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"id": map[string]interface{}{"order": "desc"}},
		},
	}
}

// SearchBookingIDs returns the ids of bookings matching query, best match first.
func (c *ElasticsearchClient) SearchBookingIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	body, err := json.Marshal(buildSearchQuery(query, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]int64, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			slog.Warn("Skipping search hit with non-numeric id", "id", hit.ID)
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (c *ElasticsearchClient) IndexBooking(ctx context.Context, doc BookingDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: strconv.FormatInt(doc.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index booking: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

func (c *ElasticsearchClient) DeleteBooking(ctx context.Context, id int64) error {
	req := esapi.DeleteRequest{
		Index:      c.config.Index,
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete error: %s", res.String())
	}

	return nil
}

func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}
