package cbis

// Attribute ids of the CBIS product schema. The table is provider-scoped
// and versioned: when CBIS renumbers, only this block changes.
const (
	AttrName             = 99
	AttrIngress          = 101
	AttrDescription      = 102
	AttrPriceInformation = 106
	AttrPhoneNumber      = 107
	AttrOrganizerEmail   = 109
	AttrWebSite          = 110
	AttrLatitude         = 113
	AttrLongitude        = 114
	AttrMedia            = 115
	AttrAddress          = 117
	AttrPostcode         = 120
	AttrPostalAddress    = 121
	AttrCountry          = 122
	AttrEventLink        = 125
	AttrBookingLink      = 126
	AttrAgeRestriction   = 127
	AttrBookingPhone     = 145
	AttrCountryCode      = 147
	AttrExternalLinks    = 152
	AttrContactPerson    = 160
	AttrContactEmail     = 161
	AttrPriceChild       = 184
	AttrPriceAdult       = 191
	AttrCoOrganizer      = 262
	AttrMunicipality     = 356
	AttrCountryCode2     = 556
)

// SchemaVersion identifies the attribute table above.
const SchemaVersion = "cbis-products-2016"

// fallbackCountry replaces purely numeric country values, which CBIS
// sends for some products instead of a name.
const fallbackCountry = "Sweden"
