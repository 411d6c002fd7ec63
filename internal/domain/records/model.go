// Package records provides the record catalog: sellable albums with a price
// and a quantity on hand, searchable by artist, album, format and category.
package records

import (
	"context"
	"strings"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/entity"
	"recordshop/internal/core/types"
)

// Format is the physical (or digital) medium of a record.
type Format string

const (
	FormatVinyl    Format = "vinyl"
	FormatCD       Format = "cd"
	FormatCassette Format = "cassette"
	FormatDigital  Format = "digital"
)

// Formats lists every accepted format.
func Formats() []Format {
	return []Format{FormatVinyl, FormatCD, FormatCassette, FormatDigital}
}

// IsValid reports whether f is a known format.
func (f Format) IsValid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette, FormatDigital:
		return true
	}
	return false
}

// Category is the musical genre of a record.
type Category string

const (
	CategoryRock        Category = "rock"
	CategoryJazz        Category = "jazz"
	CategoryHipHop      Category = "hip-hop"
	CategoryClassical   Category = "classical"
	CategoryPop         Category = "pop"
	CategoryAlternative Category = "alternative"
	CategoryIndie       Category = "indie"
)

// Categories lists every accepted category.
func Categories() []Category {
	return []Category{
		CategoryRock, CategoryJazz, CategoryHipHop, CategoryClassical,
		CategoryPop, CategoryAlternative, CategoryIndie,
	}
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRock, CategoryJazz, CategoryHipHop, CategoryClassical,
		CategoryPop, CategoryAlternative, CategoryIndie:
		return true
	}
	return false
}

// Column names shared by the query builder and the stores.
const (
	FieldArtist    = "artist"
	FieldAlbum     = "album"
	FieldFormat    = "format"
	FieldCategory  = "category"
	FieldPrice     = "price"
	FieldQty       = "qty"
	FieldMBID      = "mbid"
	FieldTrackList = "tracklist"
)

// TextSearchFields are the fields covered by the full-text index.
var TextSearchFields = []string{FieldArtist, FieldAlbum, FieldCategory}

// Record is a catalog item.
type Record struct {
	entity.BaseEntity

	// Artist is stored lowercase
	Artist string `db:"artist" json:"artist"`

	// Album is stored lowercase
	Album string `db:"album" json:"album"`

	Price types.Money `db:"price" json:"price"`

	// Qty is the quantity on hand. Orders only ever decrement it through
	// the guarded store path.
	Qty int64 `db:"qty" json:"qty"`

	Format   Format   `db:"format" json:"format"`
	Category Category `db:"category" json:"category"`

	// MBID is the MusicBrainz release id used for track list enrichment
	MBID *string `db:"mbid" json:"mbid,omitempty"`

	TrackList []string `db:"tracklist" json:"trackList"`
}

// Key is the uniqueness key of a record.
type Key struct {
	Artist string
	Album  string
	Format Format
}

// Details renders the key for error payloads.
func (k Key) Details() map[string]any {
	return map[string]any{"artist": k.Artist, "album": k.Album, "format": string(k.Format)}
}

// NewRecord creates a record with a fresh identity and normalized text fields.
func NewRecord(artist, album string, format Format, category Category) *Record {
	r := &Record{
		BaseEntity: entity.NewBaseEntity(),
		Artist:     artist,
		Album:      album,
		Format:     format,
		Category:   category,
		Price:      types.Zero(),
		TrackList:  []string{},
	}
	r.Normalize()
	return r
}

// Normalize lowercases artist and album and trims surrounding spaces.
func (r *Record) Normalize() {
	r.Artist = normalizeText(r.Artist)
	r.Album = normalizeText(r.Album)
	r.Price = types.RoundPrice(r.Price)
	if r.MBID != nil {
		mbid := strings.TrimSpace(*r.MBID)
		if mbid == "" {
			r.MBID = nil
		} else {
			r.MBID = &mbid
		}
	}
	if r.TrackList == nil {
		r.TrackList = []string{}
	}
}

// Key returns the record's uniqueness key.
func (r *Record) Key() Key {
	return Key{Artist: r.Artist, Album: r.Album, Format: r.Format}
}

// Validate implements entity.Validatable interface.
func (r *Record) Validate(_ context.Context) error {
	if r.Artist == "" {
		return apperror.NewValidation("artist is required").
			WithDetail("field", FieldArtist)
	}
	if r.Album == "" {
		return apperror.NewValidation("album is required").
			WithDetail("field", FieldAlbum)
	}
	if r.Price.IsNegative() {
		return apperror.NewValidation("price cannot be negative").
			WithDetail("field", FieldPrice)
	}
	if r.Qty < 0 {
		return apperror.NewValidation("qty cannot be negative").
			WithDetail("field", FieldQty)
	}
	if !r.Format.IsValid() {
		return apperror.NewValidation("invalid format").
			WithDetail("field", FieldFormat).
			WithDetail("value", string(r.Format))
	}
	if !r.Category.IsValid() {
		return apperror.NewValidation("invalid category").
			WithDetail("field", FieldCategory).
			WithDetail("value", string(r.Category))
	}
	return nil
}

// Snapshot returns the mutable fields keyed by column name, for audit diffs.
func (r *Record) Snapshot() map[string]any {
	s := map[string]any{
		FieldArtist:    r.Artist,
		FieldAlbum:     r.Album,
		FieldPrice:     r.Price.StringFixed(2),
		FieldQty:       r.Qty,
		FieldFormat:    string(r.Format),
		FieldCategory:  string(r.Category),
		FieldTrackList: append([]string(nil), r.TrackList...),
	}
	if r.MBID != nil {
		s[FieldMBID] = *r.MBID
	}
	return s
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.TrackList = append([]string{}, r.TrackList...)
	if r.MBID != nil {
		mbid := *r.MBID
		c.MBID = &mbid
	}
	return &c
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Artist   *string
	Album    *string
	Price    *types.Money
	Qty      *int64
	Format   *Format
	Category *Category
	MBID     *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Artist == nil && p.Album == nil && p.Price == nil && p.Qty == nil &&
		p.Format == nil && p.Category == nil && p.MBID == nil
}

// MBIDChanged reports whether applying p to r changes the external id.
func (p Patch) MBIDChanged(r *Record) bool {
	if p.MBID == nil {
		return false
	}
	next := strings.TrimSpace(*p.MBID)
	if r.MBID == nil {
		return next != ""
	}
	return next != *r.MBID
}

// Apply merges p into r and returns the columns it touched.
func (p Patch) Apply(r *Record) []string {
	var cols []string
	if p.Artist != nil {
		r.Artist = *p.Artist
		cols = append(cols, FieldArtist)
	}
	if p.Album != nil {
		r.Album = *p.Album
		cols = append(cols, FieldAlbum)
	}
	if p.Price != nil {
		r.Price = *p.Price
		cols = append(cols, FieldPrice)
	}
	if p.Qty != nil {
		r.Qty = *p.Qty
		cols = append(cols, FieldQty)
	}
	if p.Format != nil {
		r.Format = *p.Format
		cols = append(cols, FieldFormat)
	}
	if p.Category != nil {
		r.Category = *p.Category
		cols = append(cols, FieldCategory)
	}
	if p.MBID != nil {
		mbid := *p.MBID
		r.MBID = &mbid
		cols = append(cols, FieldMBID)
	}
	r.Normalize()
	return cols
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
