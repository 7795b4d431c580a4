package conversation

import (
	"regexp"
	"strings"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/model"
)

// inputClass is the second axis of the dispatch table. Classification is
// state-scoped on purpose: "listo" confirms a booking in one state and
// signals paid intent in another, and menu shortcuts must never intercept
// data entry (typing "OSDE" as an insurer name is literal input).
type inputClass string

const (
	classReset     inputClass = "reset"
	classOption    inputClass = "option"
	classGreeting  inputClass = "greeting"
	classKeyword   inputClass = "keyword"
	classBookingOK inputClass = "booking_ok"
	classPaid      inputClass = "paid"
	classOpID      inputClass = "op_id"
	classMedia     inputClass = "media"
	classText      inputClass = "text"
)

type menuKeyword string

const (
	keywordNone      menuKeyword = ""
	keywordInsurance menuKeyword = "insurance"
	keywordContact   menuKeyword = "contact"
	keywordHuman     menuKeyword = "human"
)

var (
	labeledOpRe = regexp.MustCompile(`\b(?:id|op|operacion)\s*[:#]?\s*(\d{6,})`)
	bareOpRe    = regexp.MustCompile(`(?:^|\s)(\d{10,})(?:\s|$)`)
	digitRunRe  = regexp.MustCompile(`^[\d\s.\-]+$`)
)

var greetingWords = map[string]bool{
	"hola": true, "holaa": true, "buenas": true, "buen dia": true,
	"buenos dias": true, "buenas tardes": true, "buenas noches": true,
	"gracias": true, "muchas gracias": true, "mil gracias": true,
	"chau": true, "adios": true, "hasta luego": true, "saludos": true,
}

var bookingDoneWords = map[string]bool{
	"listo": true, "lista": true, "ok": true, "oka": true, "okey": true,
	"dale": true, "ya": true, "hecho": true, "ya esta": true, "si": true,
}

var insuranceKeywords = []string{"obra social", "obras sociales", "prepaga", "cobertura"}
var contactKeywords = []string{"direccion", "horario", "telefono", "contacto", "donde estan", "donde queda"}
var humanKeywords = []string{"humano", "operador", "persona", "asesor", "recepcion", "hablar con alguien"}

// bare strips surrounding punctuation so "listo!" and "¿1?" still match
// their keyword. Normalize itself stays exactly trim+lower+deaccent.
func bare(s string) string {
	return strings.Trim(s, "!¡¿?.,:;\"'()")
}

// isResetWord reports the global reset row: "0", "menu", "inicio".
func isResetWord(norm string) bool {
	switch bare(norm) {
	case "0", "menu", "inicio":
		return true
	}
	return false
}

// menuOption maps menu input to a flow: 1/turno or 2/estudio, 0 otherwise.
func menuOption(norm string) int {
	switch bare(norm) {
	case "1", "turno", "turnos":
		return 1
	case "2", "estudio", "estudios":
		return 2
	}
	return 0
}

func isGreeting(norm string) bool {
	return greetingWords[bare(norm)]
}

func isBookingDone(norm string) bool {
	return bookingDoneWords[bare(norm)]
}

// isPaidIntent detects "I already paid" signals without an operation id.
func isPaidIntent(norm string) bool {
	b := bare(norm)
	if b == "listo" || b == "ya" || b == "pague" || b == "pago" {
		return true
	}
	for _, w := range []string{"pague", "pagado", "transferi", "abone", "ya pague"} {
		if strings.Contains(norm, w) {
			return true
		}
	}
	return false
}

func matchMenuKeyword(norm string) menuKeyword {
	for _, w := range humanKeywords {
		if strings.Contains(norm, w) {
			return keywordHuman
		}
	}
	for _, w := range insuranceKeywords {
		if strings.Contains(norm, w) {
			return keywordInsurance
		}
	}
	for _, w := range contactKeywords {
		if strings.Contains(norm, w) {
			return keywordContact
		}
	}
	return keywordNone
}

// extractOpID pulls a payment operation id out of normalized text: a
// labeled id/op/operacion with 6+ digits, else a standalone 10+ digit run.
// No match means the text is not a payment reference.
func extractOpID(norm string) string {
	if m := labeledOpRe.FindStringSubmatch(norm); m != nil {
		return m[1]
	}
	if m := bareOpRe.FindStringSubmatch(norm); m != nil {
		return m[1]
	}
	return ""
}

// looksLikeDigitRun rejects credential-shaped input where a name is
// expected: 6+ digits allowing spaces, dots and dashes.
func looksLikeDigitRun(s string) bool {
	if !digitRunRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 6
}

// classify picks exactly one class for the (state, input) pair, filling
// the turn's option and opID as a side product.
func (t *turn) classify() inputClass {
	if isResetWord(t.norm) {
		return classReset
	}

	switch t.sess.State {
	case model.StateMenu:
		if opt := menuOption(t.norm); opt != 0 {
			t.option = opt
			return classOption
		}
		if isGreeting(t.norm) {
			return classGreeting
		}
		if kw := matchMenuKeyword(t.norm); kw != keywordNone {
			t.keyword = kw
			return classKeyword
		}
		return classText

	case model.StateAwaitingBookingDone:
		if isBookingDone(t.norm) {
			return classBookingOK
		}
		return classText

	case model.StateAskPatientType:
		switch bare(t.norm) {
		case "1", "particular":
			t.option = 1
			return classOption
		case "2", "obra social":
			t.option = 2
			return classOption
		}
		return classText

	case model.StateAwaitingPayment:
		if t.in.HasMedia {
			return classMedia
		}
		if id := extractOpID(t.norm); id != "" {
			t.opID = id
			return classOpID
		}
		if isPaidIntent(t.norm) {
			return classPaid
		}
		return classText
	}

	return classText
}
