package conversation

import (
	"fmt"
	"strings"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/config"
)

// Replies is the full catalog of user-facing copy. The flow never carries
// string literals: clinic name, booking links and the deposit amount are
// injected here once, from configuration.
type Replies struct {
	Menu             string
	ThanksAck        string
	Goodbye          string
	Fallback         string
	BookingTurno     string
	BookingEstudio   string
	BookingRemind    string
	AskPatientType   string
	PatientTypeAgain string
	AskOSName        string
	OSNameNumeric    string
	AskOSToken       string
	PaymentLink      string
	PaymentFailed    string
	PaymentPending   string
	PaymentPrompt    string
	PaymentConfirmed string
	PaymentReminder  string
	MediaReview      string
	InsuranceInfo    string
	ContactInfo      string
	HandoffIntro     string
	HandoffAck       string

	LabelTurno     string
	LabelEstudio   string
	LabelRecepcion string
}

func NewReplies(cfg *config.Config) *Replies {
	deposit := formatAmount(cfg.DepositAmount)
	turnoLink := bookingLine(cfg.BookingURLTurnos)
	estudioLink := bookingLine(cfg.BookingURLEstudios)

	return &Replies{
		Menu: fmt.Sprintf(
			"¡Hola! Soy el asistente de %s 🩺\n\n"+
				"1️⃣ Pedir un turno médico\n"+
				"2️⃣ Pedir un estudio\n\n"+
				"Respondé con el número de la opción. Escribí *menu* en cualquier momento para volver acá.",
			cfg.ClinicName),
		ThanksAck: "¡De nada! Cualquier cosa escribime *menu* y empezamos de nuevo.",
		Goodbye:   fmt.Sprintf("¡Hasta luego! Gracias por comunicarte con %s.", cfg.ClinicName),
		Fallback: "No entendí tu mensaje 🤔\n\n" +
			"1️⃣ Turno médico\n2️⃣ Estudio\n\nRespondé con el número de la opción.",

		BookingTurno: fmt.Sprintf(
			"Perfecto, turno médico 👍\n\n%s\n\nCuando termines la reserva, respondé *listo* y seguimos con la seña.",
			turnoLink),
		BookingEstudio: fmt.Sprintf(
			"Perfecto, estudio 👍\n\n%s\n\nCuando termines la reserva, respondé *listo* y seguimos con la seña.",
			estudioLink),
		BookingRemind: "Te espero 😊 Reservá tu horario con el enlace que te mandé y respondé *listo* cuando termines.",

		AskPatientType:   "¿Cómo te atendés?\n\n1️⃣ Particular\n2️⃣ Obra social / prepaga\n\nRespondé 1 o 2.",
		PatientTypeAgain: "Solo necesito saber cómo te atendés:\n\n1️⃣ Particular\n2️⃣ Obra social / prepaga",
		AskOSName:        "¿Cuál es tu obra social o prepaga? (por ejemplo: OSDE, Swiss Medical, PAMI)",
		OSNameNumeric:    "Eso parece un número de credencial 🤔 Primero decime el *nombre* de tu obra social o prepaga.",
		AskOSToken:       "Ahora pasame tu número de afiliado o credencial (podés incluir tu DNI si figura en la credencial).",

		PaymentLink: fmt.Sprintf(
			"Para confirmar tu reserva pedimos una seña de %s.\n\n👉 %%s\n\n"+
				"Cuando pagues, mandame el *número de operación* o el comprobante y lo verifico al instante.",
			deposit),
		PaymentFailed: "Uy, no pude generar el enlace de pago 😞 Ya avisé al equipo y una persona te va a escribir a la brevedad para terminar la reserva.",
		PaymentPending: "Todavía no encuentro un pago aprobado con esos datos 🔎 " +
			"Puede demorar unos minutos. Verificá el número de operación o mandame el comprobante; si preferís, escribí *recepcion* y te atiende una persona.",
		PaymentPrompt: "Quedo esperando tu seña 💳 Mandame el número de operación o una foto del comprobante cuando lo tengas.",
		PaymentConfirmed: fmt.Sprintf(
			"¡Seña recibida! ✅ Tu reserva quedó confirmada.\n\nGracias por elegir %s. Te esperamos 🙌",
			cfg.ClinicName),
		PaymentReminder: fmt.Sprintf(
			"¿Seguís ahí? Te recuerdo que para confirmar la reserva falta la seña de %s. Mandame el comprobante cuando puedas 🙂",
			deposit),
		MediaReview: "¡Gracias! Recibí tu comprobante 🧾 No pude validarlo automáticamente, así que lo revisa una persona del equipo y te confirmamos por acá.",

		InsuranceInfo: fmt.Sprintf(
			"Trabajamos con las principales obras sociales y prepagas. Traé tu credencial y DNI el día de la consulta.\n\nPara empezar una reserva escribí *menu*. Ante dudas: %s",
			cfg.ClinicPhone),
		ContactInfo: fmt.Sprintf(
			"📍 %s\n🕑 %s\n📞 %s\n\nPara pedir un turno escribí *menu*.",
			cfg.ClinicAddress, cfg.ClinicHours, cfg.ClinicPhone),
		HandoffIntro: "Listo, te derivo con una persona del equipo 🧑‍⚕️ En breve te escriben por acá. Si querés volver al inicio escribí *menu*.",
		HandoffAck:   "Ya avisé al equipo, en breve te contactan 🙌 Mientras tanto podés escribir *menu* para volver al inicio.",

		LabelTurno:     "Turno médico",
		LabelEstudio:   "Estudio",
		LabelRecepcion: "Atención por recepción",
	}
}

// WithLink injects the checkout URL into the payment reply.
func (r *Replies) WithLink(link string) string {
	return fmt.Sprintf(r.PaymentLink, link)
}

func bookingLine(url string) string {
	if url == "" {
		return "Reservá tu horario llamando a recepción."
	}
	return "Reservá tu horario acá:\n" + url
}

// formatAmount renders ARS amounts the way the clinic writes them:
// thousands dot, no decimals for whole amounts.
func formatAmount(amount float64) string {
	whole := int64(amount)
	cents := int64((amount-float64(whole))*100 + 0.5)

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if cents > 0 {
		return fmt.Sprintf("$%s,%02d", b.String(), cents)
	}
	return "$" + b.String()
}
