package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/log"
	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Every document stores its value as a JSON string in the "json" field.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(siteID, name string) (*firestore.CollectionRef, error) {
	if siteID == "" {
		return nil, fmt.Errorf("siteID cannot be empty")
	}
	return f.client.Collection("sites").Doc(siteID).Collection(name), nil
}

// setJSON stores v as the "json" field of ref, along with any extra fields.
func setJSON(ctx context.Context, ref *firestore.DocumentRef, kind string, v any, extra map[string]any) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	data := map[string]any{"json": string(jsonBytes)}
	for k, val := range extra {
		data[k] = val
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return fmt.Errorf("failed to save %s %s: %w", kind, ref.ID, err)
	}
	return nil
}

// decodeJSON unmarshals the "json" field of doc.
func decodeJSON[T any](ctx context.Context, doc *firestore.DocumentSnapshot, kind string) (T, error) {
	var v T
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("kind", kind), slog.String("docID", doc.Ref.ID))
		return v, fmt.Errorf("%s document %s missing 'json' field: %w", kind, doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("kind", kind), slog.String("docID", doc.Ref.ID))
		return v, fmt.Errorf("%s document %s 'json' field is not a string", kind, doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("kind", kind), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return v, fmt.Errorf("failed to unmarshal %s (id=%s): %w", kind, doc.Ref.ID, err)
	}
	return v, nil
}

// listJSON decodes every document of coll in document ID order.
func listJSON[T any](ctx context.Context, coll *firestore.CollectionRef, kind string) ([]T, error) {
	iter := coll.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", kind, err)
		}
		v, err := decodeJSON[T](ctx, doc, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (f *FirestoreProvider) GetSettings(ctx context.Context, siteID string) (types.Settings, int, error) {
	coll, err := f.getCollection(siteID, "config")
	if err != nil {
		return types.Settings{}, 0, err
	}
	doc, err := coll.Doc("settings").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// Return default settings if not found
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	s, err := decodeJSON[types.Settings](ctx, doc, "settings")
	if err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
func (f *FirestoreProvider) SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error {
	coll, err := f.getCollection(siteID, "config")
	if err != nil {
		return err
	}
	return setJSON(ctx, coll.Doc("settings"), "settings", settings, map[string]any{"version": version})
}

// GetSite retrieves a site from the "sites" collection.
func (f *FirestoreProvider) GetSite(ctx context.Context, siteID string) (types.Site, error) {
	if siteID == "" {
		return types.Site{}, fmt.Errorf("siteID cannot be empty")
	}
	doc, err := f.client.Collection("sites").Doc(siteID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
		}
		return types.Site{}, fmt.Errorf("failed to get site %s: %w", siteID, err)
	}
	site, err := decodeJSON[types.Site](ctx, doc, "site")
	if err != nil {
		return types.Site{}, err
	}
	site.ID = siteID
	return site, nil
}

// ListSites returns every site.
func (f *FirestoreProvider) ListSites(ctx context.Context) ([]types.Site, error) {
	return listJSON[types.Site](ctx, f.client.Collection("sites"), "site")
}

// UpsertSite creates or replaces a site document. The site's subcollections
// are not touched.
func (f *FirestoreProvider) UpsertSite(ctx context.Context, site types.Site) error {
	if site.ID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	return setJSON(ctx, f.client.Collection("sites").Doc(site.ID), "site", site, nil)
}

// ListTenants returns the tenants of a site.
func (f *FirestoreProvider) ListTenants(ctx context.Context, siteID string) ([]types.Tenant, error) {
	coll, err := f.getCollection(siteID, "tenants")
	if err != nil {
		return nil, err
	}
	return listJSON[types.Tenant](ctx, coll, "tenant")
}

// UpsertTenant creates or replaces a tenant of a site.
func (f *FirestoreProvider) UpsertTenant(ctx context.Context, siteID string, tenant types.Tenant) error {
	coll, err := f.getCollection(siteID, "tenants")
	if err != nil {
		return err
	}
	if tenant.ID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	return setJSON(ctx, coll.Doc(tenant.ID), "tenant", tenant, nil)
}

// ListMeters returns the meter metadata of a site.
func (f *FirestoreProvider) ListMeters(ctx context.Context, siteID string) ([]types.Meter, error) {
	coll, err := f.getCollection(siteID, "meters")
	if err != nil {
		return nil, err
	}
	return listJSON[types.Meter](ctx, coll, "meter")
}

// UpsertMeter creates or replaces meter metadata.
func (f *FirestoreProvider) UpsertMeter(ctx context.Context, siteID string, meter types.Meter) error {
	coll, err := f.getCollection(siteID, "meters")
	if err != nil {
		return err
	}
	if meter.ID == "" {
		return fmt.Errorf("meter id cannot be empty")
	}
	return setJSON(ctx, coll.Doc(meter.ID), "meter", meter, nil)
}

// GetRawPayload retrieves the raw export of a meter from the "raw_payloads"
// sub-collection.
func (f *FirestoreProvider) GetRawPayload(ctx context.Context, siteID, meterID string) (types.RawPayload, error) {
	coll, err := f.getCollection(siteID, "raw_payloads")
	if err != nil {
		return types.RawPayload{}, err
	}
	doc, err := coll.Doc(meterID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.RawPayload{}, fmt.Errorf("%w: %s", ErrPayloadNotFound, meterID)
		}
		return types.RawPayload{}, fmt.Errorf("failed to get raw payload %s: %w", meterID, err)
	}
	p, err := decodeJSON[types.RawPayload](ctx, doc, "raw payload")
	if err != nil {
		return types.RawPayload{}, err
	}
	p.MeterID = meterID
	return p, nil
}

// UpsertRawPayload stores the raw export of a meter, replacing any previous
// export.
func (f *FirestoreProvider) UpsertRawPayload(ctx context.Context, siteID string, payload types.RawPayload) error {
	coll, err := f.getCollection(siteID, "raw_payloads")
	if err != nil {
		return err
	}
	if payload.MeterID == "" {
		return fmt.Errorf("meter id cannot be empty")
	}
	return setJSON(ctx, coll.Doc(payload.MeterID), "raw payload", payload, nil)
}

// ListShopTypes returns every shop type from the top-level "shop_types"
// collection.
func (f *FirestoreProvider) ListShopTypes(ctx context.Context) ([]types.ShopType, error) {
	return listJSON[types.ShopType](ctx, f.client.Collection("shop_types"), "shop type")
}

// UpsertShopType creates or replaces a shop type.
func (f *FirestoreProvider) UpsertShopType(ctx context.Context, shopType types.ShopType) error {
	if shopType.ID == "" {
		return fmt.Errorf("shop type id cannot be empty")
	}
	return setJSON(ctx, f.client.Collection("shop_types").Doc(shopType.ID), "shop type", shopType, nil)
}
