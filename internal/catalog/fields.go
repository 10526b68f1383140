package catalog

// Fields returns the ordered Anmeldung field catalog: person details first,
// then move details. The returned slice is freshly allocated; callers may
// not mutate the shared Field values.
func Fields() []Field {
	out := make([]Field, len(anmeldungFields))
	copy(out, anmeldungFields)
	return out
}

// ByID returns the field with the given ID, or false when unknown.
func ByID(id string) (Field, bool) {
	f, ok := fieldByID[id]
	return f, ok
}

// anmeldungFields is the single ordered source of truth for the form flow.
var anmeldungFields = []Field{
	// Person 1 details.
	{
		ID:         "family_name_p1",
		PDFFieldID: "fam1",
		Label:      "Family name",
		Description: "Your full legal current family name including all name components. " +
			"Example: Mueller, von Gräfenberg, López García",
		Validator: Validator{Kind: ValidatorText},
		Examples:  []string{"Mueller", "von Gräfenberg", "López García"},
		Required:  true,
	},
	{
		ID:         "first_name_p1",
		PDFFieldID: "vorn1",
		Label:      "First name(s)",
		Description: "Your first name(s) as officially registered. If multiple names, you can mark the primary one. " +
			"Example: Maria, Johann, Maria-Luisa",
		Validator: Validator{Kind: ValidatorText},
		Examples:  []string{"Maria", "Johann", "Maria-Luisa"},
		Required:  true,
	},
	{
		ID:          "birth_date_p1",
		PDFFieldID:  "gebdat1",
		Label:       "Date of birth",
		Description: "Your date of birth as eight digits, day month year. Example: 15011990 for January 15, 1990",
		Validator:   Validator{Kind: ValidatorDateDE},
		Examples:    []string{"15011990", "01121985"},
		Required:    true,
	},
	{
		ID:         "birth_place_p1",
		PDFFieldID: "gebort1",
		Label:      "Place of birth",
		Description: "City, region/district; if born abroad, include country. " +
			"Example: Berlin, München Bayern, São Paulo Brasilien",
		Validator: Validator{Kind: ValidatorText},
		Examples:  []string{"Berlin", "München, Bayern", "São Paulo, Brasilien"},
		Required:  true,
	},
	{
		ID:          "gender_p1",
		PDFFieldID:  "geschl1",
		Label:       "Gender",
		Description: "Your gender (choose one: 0=Male, 1=Female, 2=No answer, 3=Diverse)",
		Validator:   Validator{Kind: ValidatorIntegerChoice, Min: 0, Max: 3},
		Examples:    []string{"0", "1", "3"},
		Required:    true,
		EnumValues: map[int]string{
			0: "M (Male / Männlich)",
			1: "W (Female / Weiblich)",
			2: "o.A. (No answer / ohne Angabe)",
			3: "D (Diverse)",
		},
	},
	{
		ID:         "family_status_p1",
		PDFFieldID: "famst1",
		Label:      "Family status",
		Description: "Your legal family status (choose one): " +
			"0=single, 1=married, 2=widowed, 3=divorced, " +
			"4=registered partnership, 5=partner deceased, " +
			"6=partnership dissolved, 7=marriage annulled, 8=partner declared dead, 9=unknown",
		Validator: Validator{Kind: ValidatorIntegerChoice, Min: 0, Max: 9},
		Examples:  []string{"0", "1"},
		Required:  true,
		EnumValues: map[int]string{
			0: "LD (Single / ledig)",
			1: "VH (Married / verheiratet)",
			2: "VW (Widowed / verwitwet)",
			3: "GS (Divorced / geschieden)",
			4: "LP (Registered partnership / Lebenspartnerschaft)",
			5: "LV (Partner deceased / Lebenspartner verstorben)",
			6: "LA (Partnership dissolved / Lebenspartnerschaft aufgehoben)",
			7: "EA (Marriage annulled / Ehe aufgehoben)",
			8: "LE (Partner declared dead / Lebenspartner für tot erklärt)",
			9: "NB (Unknown / nicht bekannt)",
		},
	},
	{
		ID:         "nationality_p1",
		PDFFieldID: "staatsang1",
		Label:      "Nationality",
		Description: "Your nationality (if multiple nationalities, list all; if stateless, note 'stateless'). " +
			"Example: German, German and Brazilian, Stateless",
		Validator: Validator{Kind: ValidatorText},
		Examples:  []string{"German", "German, Brazilian", "Stateless"},
		Required:  true,
	},
	{
		ID:         "religion_p1",
		PDFFieldID: "rel1",
		Label:      "Religion",
		Description: "Your religious affiliation (choose one): " +
			"0=Roman Catholic, 1=Old Catholic, 8=Protestant, 9=Lutheran, " +
			"21=None (no public religious organization), 22=Other",
		Validator: Validator{Kind: ValidatorIntegerChoice, Min: 0, Max: 22},
		Examples:  []string{"0", "8", "21"},
		Required:  true,
		EnumValues: map[int]string{
			0:  "rk (Roman Catholic / Römisch-katholisch)",
			1:  "ak (Old Catholic / Altkatholisch)",
			8:  "ev (Protestant / Evangelisch)",
			9:  "lt (Lutheran / Evangelisch-lutherisch)",
			21: "oa (None / keiner öffentlich-rechtlichen Religionsgesellschaft angehörig)",
			22: "other (Other / Sonstiges)",
		},
	},

	// Move details.
	{
		ID:          "move_in_date",
		PDFFieldID:  "einzug",
		Label:       "Move-in date",
		Description: "Date you moved into the new residence as eight digits, day month year. Example: 15012025",
		Validator:   Validator{Kind: ValidatorDateDE},
		Examples:    []string{"15012025", "01022025"},
		Required:    true,
	},
	{
		ID:         "new_street_address",
		PDFFieldID: "neuw.strasse",
		Label:      "New address (street)",
		Description: "Street name, house number, and floor/apartment if applicable. " +
			"Example: Leopoldstraße 25a, Sonnenallee 5 3. Stock",
		Validator: Validator{Kind: ValidatorText},
		Examples:  []string{"Leopoldstraße 25 a", "Sonnenallee 5, 3. Stock"},
		Required:  true,
	},
	{
		ID:          "new_postal_code",
		PDFFieldID:  "nw.plz",
		Label:       "Postal code",
		Description: "5-digit German postal code (PLZ). Example: 80802, 10115",
		Validator:   Validator{Kind: ValidatorPostalCodeDE},
		Examples:    []string{"80802", "10115"},
		Required:    true,
	},
	{
		ID:          "new_city",
		PDFFieldID:  "nw.ort",
		Label:       "City",
		Description: "City or municipality name. Example: München, Berlin",
		Validator:   Validator{Kind: ValidatorText},
		Examples:    []string{"München", "Berlin"},
		Required:    true,
	},
	{
		ID:         "housing_type",
		PDFFieldID: "wohnung",
		Label:      "Housing type",
		Description: "Type of residence (choose one): " +
			"0=sole residence (only apartment in Germany), " +
			"1=main residence (primary residence), " +
			"2=secondary residence (additional apartment)",
		Validator: Validator{Kind: ValidatorIntegerChoice, Min: 0, Max: 2},
		Examples:  []string{"0", "1"},
		Required:  true,
		EnumValues: map[int]string{
			0: "alleinige Wohnung (Sole residence)",
			1: "Hauptwohnung (Main residence)",
			2: "Nebenwohnung (Secondary residence)",
		},
	},
}

var fieldByID = func() map[string]Field {
	m := make(map[string]Field, len(anmeldungFields))
	for _, f := range anmeldungFields {
		m[f.ID] = f
	}
	return m
}()

// ToPDFFormat converts completed answers keyed by field ID into the key/value
// map expected by the PDF form renderer: keys become PDF field names and
// eight-digit dates are rewritten with dot separators (DD.MM.YYYY). Unknown
// field IDs are skipped.
func ToPDFFormat(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for id, value := range answers {
		f, ok := fieldByID[id]
		if !ok {
			continue
		}
		if f.Validator.Kind == ValidatorDateDE && len(value) == 8 {
			value = value[0:2] + "." + value[2:4] + "." + value[4:8]
		}
		out[f.PDFFieldID] = value
	}
	return out
}
