package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Meta requires a public privacy-policy URL before approving a WhatsApp
// Business app, so the page ships with the server instead of depending on
// the clinic having a website.
const privacyTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Política de privacidad — {{.ClinicName}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 42rem; margin: 2rem auto; padding: 0 1rem; color: #222; line-height: 1.6; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; margin-top: 1.5rem; }
</style>
</head>
<body>
<h1>Política de privacidad</h1>
<p>{{.ClinicName}} utiliza este asistente de WhatsApp únicamente para
coordinar turnos y estudios médicos.</p>

<h2>Qué datos tratamos</h2>
<p>Tu número de teléfono, los mensajes que nos envías por este canal y, si
te atendés por obra social, el nombre de tu cobertura y tu número de
afiliado. Los pagos de seña se procesan a través de Mercado Pago; no
recibimos ni almacenamos datos de tarjetas.</p>

<h2>Para qué los usamos</h2>
<p>Exclusivamente para gestionar tu reserva: confirmar el turno, registrar
la seña y contactarte si hace falta completar la atención. No usamos tus
datos con fines publicitarios ni los compartimos con terceros ajenos a la
gestión del turno.</p>

<h2>Cuánto los conservamos</h2>
<p>Los registros de reservas se conservan como constancia administrativa de
la clínica. Podés pedir su eliminación en cualquier momento.</p>

<h2>Contacto</h2>
<p>Para consultas sobre esta política escribinos por WhatsApp a este mismo
número{{if .ClinicPhone}} o llamanos al {{.ClinicPhone}}{{end}}.</p>
</body>
</html>
`

// PrivacyHandler serves the privacy-policy page. The copy is fixed at
// startup, so the template renders once and the bytes are reused.
type PrivacyHandler struct {
	page []byte
}

func NewPrivacyHandler(clinicName, clinicPhone string) *PrivacyHandler {
	tmpl := template.Must(template.New("privacy").Parse(privacyTemplate))

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		ClinicName  string
		ClinicPhone string
	}{
		ClinicName:  clinicName,
		ClinicPhone: clinicPhone,
	})
	if err != nil {
		// Only reachable when the constant template above is edited broken.
		log.Error().Err(err).Msg("privacy template render failed")
	}

	return &PrivacyHandler{page: buf.Bytes()}
}

func (h *PrivacyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(h.page)
}
