// Package provider defines canonical data types that all providers normalize
// into. These structs are the contract between provider adapters and the
// import orchestrator. Adapters output these; the orchestrator reconciles
// and persists them.
//
// Adding a new provider means implementing Source and a Raw record type
// whose Normalize returns these types. The orchestrator and schema never
// change.
//
// String fields use "" for null; every string has passed CleanString (or
// CleanPhone / CleanEmail) before it leaves a Normalize call.
package provider

// Kind names an entity kind handled by reconciliation.
type Kind string

const (
	KindEvent    Kind = "event"
	KindLocation Kind = "location"
	KindContact  Kind = "contact"
)

// Meta is provenance and publishing data shared by all canonical entities.
type Meta struct {
	ExternalUID  string `json:"external_uid,omitempty"`
	ImportClient string `json:"import_client"`
	Status       string `json:"status"`
	Groups       []int  `json:"groups,omitempty"`
}

// Location is the canonical location shape written to the locations table.
type Location struct {
	Meta
	Title         string   `json:"title"`
	StreetAddress string   `json:"street_address,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty"`
	City          string   `json:"city,omitempty"`
	Municipality  string   `json:"municipality,omitempty"`
	Country       string   `json:"country,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// Contact is the canonical contact shape written to the contacts table.
type Contact struct {
	Meta
	Title string `json:"title"` // contact person or organizer name
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Occurrence is one raw date/time occurrence as delivered by the provider.
// Parsing and validation happen in the occasion store.
type Occurrence struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Door  string `json:"door,omitempty"`
}

// Event is the canonical event shape written to the events table.
type Event struct {
	Meta
	Title            string       `json:"title"`
	Content          string       `json:"content,omitempty"`
	AlternateName    string       `json:"alternate_name,omitempty"`
	EventLink        string       `json:"event_link,omitempty"`
	BookingLink      string       `json:"booking_link,omitempty"`
	BookingPhone     string       `json:"booking_phone,omitempty"`
	OrganizerPhone   string       `json:"organizer_phone,omitempty"`
	OrganizerEmail   string       `json:"organizer_email,omitempty"`
	Coorganizer      string       `json:"coorganizer,omitempty"`
	AgeRestriction   string       `json:"age_restriction,omitempty"`
	PriceInformation string       `json:"price_information,omitempty"`
	PriceAdult       string       `json:"price_adult,omitempty"`
	PriceChildren    string       `json:"price_children,omitempty"`
	ImageURL         string       `json:"image_url,omitempty"`
	Categories       []string     `json:"categories,omitempty"`
	Occurrences      []Occurrence `json:"occurrences,omitempty"`

	// Set by the orchestrator after the related entities are resolved.
	LocationID *int64  `json:"location_id,omitempty"`
	ContactIDs []int64 `json:"contact_ids,omitempty"`
}

// Bundle is everything one raw provider record normalizes into.
// Location and Contact are resolved first so the event can reference them.
type Bundle struct {
	Event    *Event
	Location *Location
	Contact  *Contact
}

// Empty reports whether the bundle carries no entity at all.
func (b Bundle) Empty() bool {
	return b.Event == nil && b.Location == nil && b.Contact == nil
}
