package mapping

import "sync"

// Field names of a contact document.
const (
	FieldName          = "name"
	FieldNicknames     = "nicknames"
	FieldCategories    = "categories"
	FieldGender        = "gender"
	FieldLastUpdated   = "lastUpdated"
	FieldBirthday      = "birthday"
	FieldAnniversary   = "anniversary"
	FieldEmails        = "emails"
	FieldPhotos        = "photos"
	FieldURLs          = "urls"
	FieldPhoneNumbers  = "phoneNumbers"
	FieldAddresses     = "addresses"
	FieldOrganizations = "organizations"
	FieldJobTitles     = "jobTitles"
	FieldNotes         = "notes"
	FieldIMPP          = "impp"
)

// GenericFields is the write order of the table-driven multi-valued fields.
var GenericFields = []string{
	FieldEmails, FieldPhotos, FieldURLs, FieldPhoneNumbers, FieldAddresses,
	FieldOrganizations, FieldJobTitles, FieldNotes, FieldIMPP,
}

// GenderValues are the only gender values that are stored.
var GenderValues = map[string]bool{
	"male": true, "female": true, "other": true, "none": true, "unknown": true,
}

// EmailTypes are the sub-type codes of emails.
var EmailTypes = map[string]int{"home": 1, "work": 2, "other": 3, "mobile": 4}

// URLTypes are the sub-type codes of urls.
var URLTypes = map[string]int{
	"homepage": 1, "blog": 2, "profile": 3, "home": 4, "work": 5, "ftp": 6, "other": 7,
}

// AddressTypes are the sub-type codes of addresses.
var AddressTypes = map[string]int{"home": 1, "work": 2, "other": 3}

// PhoneTypes are the sub-type codes of phone numbers.
var PhoneTypes = map[string]int{
	"home": 1, "mobile": 2, "work": 3, "fax_work": 4, "fax_home": 5,
	"pager": 6, "other": 7, "callback": 8, "car": 9, "company_main": 10,
	"isdn": 11, "main": 12, "other_fax": 13, "radio": 14, "telex": 15,
	"tty_tdd": 16, "work_mobile": 17, "work_pager": 18, "assistant": 19, "mms": 20,
}

// IMTypes are the sub-type codes of instant messaging handles.
var IMTypes = map[string]int{"home": 1, "work": 2, "other": 3}

// IMProtocols are the protocol codes of instant messaging handles.
var IMProtocols = map[string]int{
	"aim": 0, "msn": 1, "ymsgr": 2, "skype": 3, "qq": 4,
	"gtalk": 5, "icq": 6, "jabber": 7, "netmeeting": 8,
}

// EventTypes are the sub-type codes of dated events.
var EventTypes = map[string]int{"anniversary": 1, "other": 2, "birthday": 3}

var primary = &PrimaryColumns{Primary: ColIsPrimary, SuperPrimary: ColIsSuperPrimary}

// Fields returns the registrations of the default table.
func Fields() []FieldMapping {
	return []FieldMapping{
		{
			Name:        FieldName,
			StorageType: TypeName,
			Columns: columns(
				"displayName", ColData1,
				"givenNames", ColData2,
				"familyNames", ColData3,
				"honorificPrefixes", ColData4,
				"middleNames", ColData5,
				"honorificSuffixes", ColData6,
				"additionalNames", ColData5,
			),
		},
		{Name: FieldNicknames, StorageType: TypeNickname, Columns: columns("value", ColData1)},
		{Name: FieldCategories, StorageType: TypeGroupMembership, MultiValued: true, Columns: columns("value", ColData1)},
		{Name: FieldGender, StorageType: TypeGender, Columns: columns("value", ColData1)},
		{Name: FieldLastUpdated, StorageType: TypeLastUpdated, Columns: columns("value", ColData1)},
		{
			Name:        FieldBirthday,
			StorageType: TypeEvent,
			Columns:     columns("value", ColData1),
			TypeColumn:  ColData2,
			TypeCodes:   EventTypes,
		},
		{
			Name:        FieldAnniversary,
			StorageType: TypeEvent,
			Columns:     columns("value", ColData1),
			TypeColumn:  ColData2,
			TypeCodes:   EventTypes,
		},
		{
			Name:        FieldEmails,
			StorageType: TypeEmail,
			MultiValued: true,
			Columns:     columns("value", ColData1),
			TypeColumn:  ColData2,
			TypeCodes:   EmailTypes,
			Primary:     primary,
		},
		{Name: FieldPhotos, StorageType: TypePhoto, MultiValued: true, Columns: columns("value", ColData1)},
		{
			Name:        FieldURLs,
			StorageType: TypeWebsite,
			MultiValued: true,
			Columns:     columns("value", ColData1),
			TypeColumn:  ColData2,
			TypeCodes:   URLTypes,
			Primary:     primary,
		},
		{
			Name:        FieldPhoneNumbers,
			StorageType: TypePhone,
			MultiValued: true,
			Columns:     columns("value", ColData1),
			TypeColumn:  ColData2,
			TypeCodes:   PhoneTypes,
			Primary:     primary,
		},
		{
			Name:        FieldAddresses,
			StorageType: TypePostal,
			MultiValued: true,
			Columns: columns(
				"streetAddress", ColData4,
				"locality", ColData6,
				"region", ColData8,
				"postalCode", ColData9,
				"countryName", ColData10,
			),
			TypeColumn: ColData2,
			TypeCodes:  AddressTypes,
			Primary:    primary,
		},
		{Name: FieldOrganizations, StorageType: TypeOrganization, MultiValued: true, Columns: columns("value", ColData1)},
		{Name: FieldJobTitles, StorageType: TypeOrganization, MultiValued: true, Columns: columns("value", ColData4)},
		{Name: FieldNotes, StorageType: TypeNote, MultiValued: true, Columns: columns("value", ColData1)},
		{
			Name:           FieldIMPP,
			StorageType:    TypeIM,
			MultiValued:    true,
			Columns:        columns("value", ColData1),
			TypeColumn:     ColData2,
			TypeCodes:      IMTypes,
			Primary:        primary,
			ProtocolColumn: ColData5,
			ProtocolCodes:  IMProtocols,
		},
	}
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the process-wide mapping table. It panics if the built-in
// registrations are inconsistent.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(Fields(), GenericFields)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}
