package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

type externalSystem struct {
	Name      string `json:"name"`
	PublicURL string `json:"publicURL"`
}

type metadataRecord struct {
	ID                 int64           `json:"id"`
	PID                string          `json:"pid"`
	Type               string          `json:"type"`
	Barcode            string          `json:"barcode"`
	CatalogKey         string          `json:"catalogKey"`
	CallNumber         string          `json:"callNumber"`
	Title              string          `json:"title"`
	CreatorName        string          `json:"creatorName"`
	DescMetadata       string          `json:"descMetadata"`
	ExternalSystem     *externalSystem `json:"externalSystem"`
	ExternalURI        string          `json:"externalURI"`
	SupplementalSystem *externalSystem `json:"supplementalSystem"`
	SupplementalURI    string          `json:"supplementalURI"`
	DateDLIngest       *string         `json:"dateDLIngest"`
	DateDLUpdate       *string         `json:"dateDLUpdate"`
	DPLA               bool            `json:"dpla"`
	CreatorDeathDate   int64           `json:"creatorDeathDate"`
	CollectionFacet    string          `json:"collectionFacet"`
	ParentID           int64           `json:"parentID"`
	IsManuscript       bool            `json:"isManuscript"`
	IsPersonalItem     bool            `json:"isPersonalItem"`
	OCRLanguageHint    string          `json:"ocrLanguageHint"`
}

type metadataDetails struct {
	Title            string `json:"title"`
	CreatorName      string `json:"creatorName"`
	CreatorType      string `json:"creatorType"`
	Year             string `json:"year"`
	PublicationPlace string `json:"publicationPlace"`
	Location         string `json:"location"`
	PreviewURL       string `json:"previewURL"`
	ObjectURL        string `json:"objectURL"`
}

type archivesSpaceRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CreatedBy       string `json:"created_by"`
	CreateTime      string `json:"create_time"`
	Level           string `json:"level"`
	URL             string `json:"url"`
	Repo            string `json:"repo"`
	CollectionTitle string `json:"collection_title"`
	Language        string `json:"language"`
	Dates           string `json:"dates"`
}

// ArchivesSpace is the ArchivesSpace view of externally described metadata.
type ArchivesSpace struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CreatedBy       string `json:"createdBy"`
	CreateDate      string `json:"createDate"`
	Level           string `json:"level"`
	URL             string `json:"url"`
	Repo            string `json:"repo"`
	CollectionTitle string `json:"collectionTitle"`
	Language        string `json:"language"`
	Dates           string `json:"dates"`
}

// DigitalLibrary is the metadata's publication state.
type DigitalLibrary struct {
	PID              string `json:"pid"`
	InDL             bool   `json:"inDL"`
	InDPLA           bool   `json:"inDPLA"`
	CreatorDeathDate string `json:"creatorDeathDate,omitempty"`
	CollectionFacet  string `json:"collectionFacet,omitempty"`
	DateDLIngest     string `json:"dateDLIngest,omitempty"`
	DateDLUpdate     string `json:"dateDLUpdate,omitempty"`
}

// Metadata is a metadata record as the detail page shows it.
type Metadata struct {
	ID                 int64          `json:"id"`
	Type               string         `json:"type"`
	Barcode            string         `json:"barcode"`
	CatalogKey         string         `json:"catalogKey"`
	CallNumber         string         `json:"callNumber"`
	Title              string         `json:"title"`
	CreatorName        string         `json:"creatorName"`
	CreatorNameType    string         `json:"creatorNameType,omitempty"`
	Year               string         `json:"year,omitempty"`
	PublicationPlace   string         `json:"publicationPlace,omitempty"`
	Location           string         `json:"location,omitempty"`
	XMLMetadata        string         `json:"xmlMetadata,omitempty"`
	ExternalSystem     string         `json:"externalSystem,omitempty"`
	ExternalURL        string         `json:"externalURL,omitempty"`
	SupplementalSystem string         `json:"supplementalSystem,omitempty"`
	SupplementalURL    string         `json:"supplementalURL,omitempty"`
	ThumbURL           string         `json:"thumbURL,omitempty"`
	ViewerURL          string         `json:"viewerURL,omitempty"`
	VirgoURL           string         `json:"virgoURL,omitempty"`
	DL                 DigitalLibrary `json:"dl"`
	ArchivesSpace      *ArchivesSpace `json:"archivesSpace,omitempty"`
	ParentID           int64          `json:"parentID"`
	IsManuscript       bool           `json:"isManuscript"`
	IsPersonalItem     bool           `json:"isPersonalItem"`
	OCRLanguageHint    string         `json:"ocrLanguageHint,omitempty"`
}

type metadataResponse struct {
	Metadata  metadataRecord       `json:"metadata"`
	Details   *metadataDetails     `json:"details"`
	ASDetails *archivesSpaceRecord `json:"asDetails"`
	VirgoURL  string               `json:"virgoURL"`
}

func (r metadataResponse) view() Metadata {
	md := r.Metadata
	m := Metadata{
		ID:              md.ID,
		Type:            md.Type,
		Barcode:         md.Barcode,
		CatalogKey:      md.CatalogKey,
		CallNumber:      md.CallNumber,
		Title:           md.Title,
		CreatorName:     md.CreatorName,
		ParentID:        md.ParentID,
		IsManuscript:    md.IsManuscript,
		IsPersonalItem:  md.IsPersonalItem,
		OCRLanguageHint: md.OCRLanguageHint,
		DL: DigitalLibrary{
			PID:             md.PID,
			InDL:            md.DateDLIngest != nil,
			InDPLA:          md.DPLA,
			CollectionFacet: md.CollectionFacet,
			DateDLIngest:    deref(md.DateDLIngest),
			DateDLUpdate:    deref(md.DateDLUpdate),
		},
	}
	if md.CreatorDeathDate > 0 {
		m.DL.CreatorDeathDate = strconv.FormatInt(md.CreatorDeathDate, 10)
	}

	switch {
	case md.Type == "XmlMetadata" || md.Type == "SirsiMetadata":
		if d := r.Details; d != nil {
			if d.Title != "" {
				m.Title = d.Title
			}
			if d.CreatorName != "" {
				m.CreatorName = d.CreatorName
			}
			m.CreatorNameType = d.CreatorType
			m.Year = d.Year
			m.PublicationPlace = d.PublicationPlace
			m.Location = d.Location
			m.ThumbURL = d.PreviewURL
			m.ViewerURL = d.ObjectURL
		}
		m.VirgoURL = r.VirgoURL
		m.XMLMetadata = md.DescMetadata
	case md.ExternalSystem != nil:
		m.ExternalSystem = md.ExternalSystem.Name
		m.ExternalURL = md.ExternalSystem.PublicURL + md.ExternalURI
		if md.ExternalSystem.Name == "ArchivesSpace" && r.ASDetails != nil {
			as := r.ASDetails
			date, _, _ := strings.Cut(as.CreateTime, "T")
			m.ArchivesSpace = &ArchivesSpace{
				ID:              as.ID,
				Title:           as.Title,
				CreatedBy:       as.CreatedBy,
				CreateDate:      date,
				Level:           as.Level,
				URL:             as.URL,
				Repo:            as.Repo,
				CollectionTitle: as.CollectionTitle,
				Language:        as.Language,
				Dates:           as.Dates,
			}
		}
	}

	if md.SupplementalURI != "" && md.SupplementalSystem != nil {
		m.SupplementalURL = md.SupplementalSystem.PublicURL + "/" + md.SupplementalURI
		m.SupplementalSystem = md.SupplementalSystem.Name
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MetadataStoreOptions groups dependencies for MetadataStore.
type MetadataStoreOptions struct {
	Deps StoreDeps
}

// MetadataStore shows metadata records.
type MetadataStore struct {
	deps   StoreDeps
	logger *slog.Logger

	mu     sync.Mutex
	detail Metadata
}

// NewMetadataStore constructs a MetadataStore.
func NewMetadataStore(opts MetadataStoreOptions) *MetadataStore {
	opts.Deps.validate("MetadataStore")
	return &MetadataStore{
		deps:   opts.Deps,
		logger: resolveLogger(opts.Deps.Logger).With("store", "metadata"),
	}
}

// GetDetails loads one metadata record.
func (s *MetadataStore) GetDetails(ctx context.Context, id int64) (Metadata, error) {
	s.deps.System.SetWorking(true)
	var resp metadataResponse
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/metadata/%d", id), &resp); err != nil {
		return Metadata{}, detailFailed(s.deps, err)
	}
	s.deps.System.SetWorking(false)

	m := resp.view()
	s.mu.Lock()
	s.detail = m
	s.mu.Unlock()
	return m, nil
}

// Details returns the last loaded record.
func (s *MetadataStore) Details() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}
