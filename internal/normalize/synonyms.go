package normalize

import "strings"

// Canonical transmission values.
const (
	TransmissionAutomatic = "automatic"
	TransmissionManual    = "manual"
	TransmissionRobotic   = "robotic"
	TransmissionTiptronic = "tiptronic"
)

// Canonical fuel types.
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelHybrid   = "hybrid"
	FuelElectric = "electric"
	FuelLPG      = "lpg"
)

// synonym binds one source token to its canonical value. Matching is by
// containment, so longer, more specific tokens must come before shorter
// ones that they contain.
type synonym struct {
	token string
	canon string
}

var transmissionSynonyms = []synonym{
	{"טיפטרוניק", TransmissionTiptronic},
	{"tiptronic", TransmissionTiptronic},
	{"רובוטית", TransmissionRobotic},
	{"robotic", TransmissionRobotic},
	{"אוטומטית", TransmissionAutomatic},
	{"אוטומט", TransmissionAutomatic},
	{"automatic", TransmissionAutomatic},
	{"auto", TransmissionAutomatic},
	{"ידנית", TransmissionManual},
	{"ידני", TransmissionManual},
	{"manual", TransmissionManual},
}

var fuelSynonyms = []synonym{
	{"היברידי", FuelHybrid},
	{"היבריד", FuelHybrid},
	{"hybrid", FuelHybrid},
	{"חשמלי", FuelElectric},
	{"חשמל", FuelElectric},
	{"electric", FuelElectric},
	{"ev", FuelElectric},
	{"דיזל", FuelDiesel},
	{"diesel", FuelDiesel},
	{"בנזין", FuelPetrol},
	{"petrol", FuelPetrol},
	{"gasoline", FuelPetrol},
	{"גפ\"מ", FuelLPG},
	{"lpg", FuelLPG},
}

var bodyTypeSynonyms = []synonym{
	{"סטיישן", "station_wagon"},
	{"station wagon", "station_wagon"},
	{"estate", "station_wagon"},
	{"האצ'בק", "hatchback"},
	{"hatchback", "hatchback"},
	{"סדאן", "sedan"},
	{"sedan", "sedan"},
	{"פנאי שטח", "suv"},
	{"ג'יפ", "suv"},
	{"suv", "suv"},
	{"קופה", "coupe"},
	{"coupe", "coupe"},
	{"קבריולט", "convertible"},
	{"convertible", "convertible"},
	{"מיניוואן", "minivan"},
	{"minivan", "minivan"},
	{"טנדר", "pickup"},
	{"pickup", "pickup"},
	{"מסחרי", "commercial"},
}

var colorSynonyms = []synonym{
	{"לבן", "white"},
	{"white", "white"},
	{"שחור", "black"},
	{"black", "black"},
	{"כסוף", "silver"},
	{"כסף", "silver"},
	{"silver", "silver"},
	{"אפור", "gray"},
	{"gray", "gray"},
	{"grey", "gray"},
	{"כחול", "blue"},
	{"blue", "blue"},
	{"אדום", "red"},
	{"red", "red"},
	{"ירוק", "green"},
	{"green", "green"},
	{"חום", "brown"},
	{"brown", "brown"},
	{"בז'", "beige"},
	{"beige", "beige"},
	{"זהב", "gold"},
	{"gold", "gold"},
	{"צהוב", "yellow"},
	{"yellow", "yellow"},
	{"כתום", "orange"},
	{"orange", "orange"},
}

var statusSynonyms = []synonym{
	{"נמכר", StatusSold},
	{"מכור", StatusSold},
	{"sold", StatusSold},
	{"לא פעיל", StatusInactive},
	{"inactive", StatusInactive},
	{"פג תוקף", StatusExpired},
	{"expired", StatusExpired},
}

// mapSynonym finds the first table token contained in the text.
func mapSynonym(table []synonym, text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, s := range table {
		if strings.Contains(lowered, s.token) {
			return s.canon, true
		}
	}
	return "", false
}

// MapTransmission maps a source gearbox token to the closed transmission
// vocabulary.
func MapTransmission(text string) (string, bool) {
	return mapSynonym(transmissionSynonyms, text)
}

// MapFuelType maps a source fuel token to the closed fuel vocabulary.
func MapFuelType(text string) (string, bool) {
	return mapSynonym(fuelSynonyms, text)
}

// MapBodyType maps a source body style token to the closed body vocabulary.
func MapBodyType(text string) (string, bool) {
	return mapSynonym(bodyTypeSynonyms, text)
}

// MapColor maps a source color token to the closed color vocabulary.
func MapColor(text string) (string, bool) {
	return mapSynonym(colorSynonyms, text)
}

// MapStatus maps a source badge to a listing status.
func MapStatus(text string) (string, bool) {
	return mapSynonym(statusSynonyms, text)
}
