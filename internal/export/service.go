// Package export produces public directory dumps and uploads them to
// object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Uploader stores one dump object. Implemented by the MinIO client.
type Uploader interface {
	Upload(ctx context.Context, objectName, contentType string, payload []byte) error
}

// Service builds snapshots and uploads them as JSON and CSV objects.
type Service struct {
	loader   Loader
	uploader Uploader
}

func NewService(loader Loader, uploader Uploader) *Service {
	return &Service{loader: loader, uploader: uploader}
}

// Run produces one dump: a complete JSON snapshot plus a flat CSV of
// organisations for spreadsheet users. Object names carry the snapshot
// timestamp so successive dumps never overwrite each other.
func (s *Service) Run(ctx context.Context) ([]Result, error) {
	snap, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	stamp := snap.GeneratedAt.Format("20060102-150405")

	jsonPayload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	jsonObject := fmt.Sprintf("dumps/mango-%s.json", stamp)
	if err := s.uploader.Upload(ctx, jsonObject, "application/json", jsonPayload); err != nil {
		return nil, fmt.Errorf("upload %s: %w", jsonObject, err)
	}

	csvPayload, err := orgsCSV(snap)
	if err != nil {
		return nil, fmt.Errorf("render orgs csv: %w", err)
	}
	csvObject := fmt.Sprintf("dumps/mango-orgs-%s.csv", stamp)
	if err := s.uploader.Upload(ctx, csvObject, "text/csv", csvPayload); err != nil {
		return nil, fmt.Errorf("upload %s: %w", csvObject, err)
	}

	return []Result{
		{Object: jsonObject, ContentType: "application/json", Size: len(jsonPayload)},
		{Object: csvObject, ContentType: "text/csv", Size: len(csvPayload)},
	}, nil
}

// orgsCSV flattens each organisation with its linked addresses and tags
// into one row per org/address pair.
func orgsCSV(snap Snapshot) ([]byte, error) {
	addresses := make(map[int64]AddressEntry, len(snap.Addresses))
	for _, a := range snap.Addresses {
		addresses[a.ID] = a
	}
	tags := make(map[int64]TagEntry, len(snap.Tags))
	for _, t := range snap.Tags {
		tags[t.ID] = t
	}

	orgAddresses := make(map[int64][]int64)
	orgTags := make(map[int64][]string)
	for _, l := range snap.Links {
		if l.AKind != "org" {
			continue
		}
		switch l.BKind {
		case "address":
			orgAddresses[l.AID] = append(orgAddresses[l.AID], l.BID)
		case "tag":
			if t, ok := tags[l.BID]; ok {
				orgTags[l.AID] = append(orgTags[l.AID], t.Name)
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"org_id", "name", "description", "postal", "latitude", "longitude", "tags"}); err != nil {
		return nil, err
	}
	for _, org := range snap.Orgs {
		tagList := ""
		for i, name := range orgTags[org.ID] {
			if i > 0 {
				tagList += "; "
			}
			tagList += name
		}
		rows := orgAddresses[org.ID]
		if len(rows) == 0 {
			if err := w.Write([]string{
				strconv.FormatInt(org.ID, 10), org.Name, org.Description, "", "", "", tagList,
			}); err != nil {
				return nil, err
			}
			continue
		}
		for _, addrID := range rows {
			addr := addresses[addrID]
			if err := w.Write([]string{
				strconv.FormatInt(org.ID, 10), org.Name, org.Description,
				addr.Postal, floatString(addr.Latitude), floatString(addr.Longitude), tagList,
			}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func floatString(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
