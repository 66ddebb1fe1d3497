package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"signbridge-server/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// Kind selects which email is sent.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder     Kind = "reminder"
	KindCancellation Kind = "cancellation"
	KindRescheduled  Kind = "rescheduled"
)

// Strings are the localized labels shared by every template.
type Strings struct {
	Tagline            string
	Greeting           string
	Details            string
	Provider           string
	Specialty          string
	Date               string
	Time               string
	Reason             string
	Interpreter        string
	Requested          string
	CancellationReason string
	JoinEarly          string
	JoinButton         string
	Manage             string
	AppointmentID      string
	NoReply            string

	Heading string
}

type kindStrings struct {
	heading string
	subject string // fmt pattern, receives the date or hours until
	intro   string
}

var labels = map[models.Language]Strings{
	models.LanguageEnglish: {
		Tagline:            "Connecting Healthcare with the Deaf Community",
		Greeting:           "Dear",
		Details:            "Appointment Details",
		Provider:           "Provider",
		Specialty:          "Specialty",
		Date:               "Date",
		Time:               "Time",
		Reason:             "Reason",
		Interpreter:        "Interpreter",
		Requested:          "Requested",
		CancellationReason: "Cancellation reason",
		JoinEarly:          "Please join the video call 5 minutes before your scheduled time.",
		JoinButton:         "Join Video Call",
		Manage:             "If you need to cancel or reschedule your appointment, please log in to your SignBridge account.",
		AppointmentID:      "Appointment ID",
		NoReply:            "This is an automated email. Please do not reply.",
	},
	models.LanguageSpanish: {
		Tagline:            "Conectando la Atención Médica con la Comunidad Sorda",
		Greeting:           "Estimado/a",
		Details:            "Detalles de la Cita",
		Provider:           "Proveedor",
		Specialty:          "Especialidad",
		Date:               "Fecha",
		Time:               "Hora",
		Reason:             "Motivo",
		Interpreter:        "Intérprete",
		Requested:          "Solicitado",
		CancellationReason: "Motivo de cancelación",
		JoinEarly:          "Por favor únase a la videollamada 5 minutos antes de su hora programada.",
		JoinButton:         "Unirse a la Videollamada",
		Manage:             "Si necesita cancelar o reprogramar su cita, por favor inicie sesión en su cuenta de SignBridge.",
		AppointmentID:      "ID de Cita",
		NoReply:            "Este es un correo automático. Por favor no responda.",
	},
}

var kinds = map[models.Language]map[Kind]kindStrings{
	models.LanguageEnglish: {
		KindConfirmation: {"Appointment Confirmation", "Appointment Confirmation - %s", "Your medical appointment has been confirmed with the following details:"},
		KindReminder:     {"Appointment Reminder", "Reminder: Appointment in %d hours", "This is a reminder of your upcoming appointment:"},
		KindCancellation: {"Appointment Cancelled", "Appointment Cancelled - %s", "Your appointment has been cancelled:"},
		KindRescheduled:  {"Appointment Rescheduled", "Appointment Rescheduled - %s", "Your appointment has been moved to a new time:"},
	},
	models.LanguageSpanish: {
		KindConfirmation: {"Confirmación de Cita", "Confirmación de Cita - %s", "Su cita médica ha sido confirmada con los siguientes detalles:"},
		KindReminder:     {"Recordatorio de Cita", "Recordatorio: Cita en %d horas", "Este es un recordatorio de su próxima cita:"},
		KindCancellation: {"Cita Cancelada", "Cita Cancelada - %s", "Su cita ha sido cancelada:"},
		KindRescheduled:  {"Cita Reprogramada", "Cita Reprogramada - %s", "Su cita ha sido cambiada a un nuevo horario:"},
	},
}

var (
	spanishDays   = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// EmailData is the template input for one appointment email.
type EmailData struct {
	PatientName        string
	ProviderName       string
	Specialty          string
	Start              time.Time
	Reason             string
	NeedsInterpreter   bool
	SignLanguage       string
	CancellationReason string
	AppointmentID      string
	VideoCallURL       string
	HoursUntil         int
}

type view struct {
	EmailData
	L        Strings
	Lang     models.Language
	Intro    string
	Date     string
	Time     string
	JoinLink bool
}

// FormatDate renders a long date in the given language.
func FormatDate(t time.Time, lang models.Language) string {
	if lang == models.LanguageSpanish {
		return fmt.Sprintf("%s, %d de %s de %d", spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Year())
	}
	return t.Format("Monday, January 2, 2006")
}

// FormatTime renders a clock time in the given language.
func FormatTime(t time.Time, lang models.Language) string {
	if lang == models.LanguageSpanish {
		return t.Format("15:04")
	}
	return t.Format("3:04 PM")
}

// Render produces the subject, HTML and text bodies. Start must already be
// in the recipient's time zone.
func Render(kind Kind, lang models.Language, data EmailData) (Message, error) {
	if lang != models.LanguageSpanish {
		lang = models.LanguageEnglish
	}
	ks, ok := kinds[lang][kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown email kind %q", kind)
	}

	v := view{
		EmailData: data,
		L:         labels[lang],
		Lang:      lang,
		Intro:     ks.intro,
		Date:      FormatDate(data.Start, lang),
		Time:      FormatTime(data.Start, lang),
		JoinLink:  kind != KindCancellation && data.VideoCallURL != "",
	}
	v.L.Heading = ks.heading

	var subject string
	if kind == KindReminder {
		subject = fmt.Sprintf(ks.subject, data.HoursUntil)
	} else {
		subject = fmt.Sprintf(ks.subject, v.Date)
	}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "appointment.html.tmpl", v); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, "appointment.txt.tmpl", v); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

type resetStrings struct {
	subject string
	heading string
	intro   string
	button  string
	expiry  string // fmt pattern, receives minutes
	ignore  string
}

var passwordReset = map[models.Language]resetStrings{
	models.LanguageEnglish: {
		subject: "Reset your SignBridge password",
		heading: "Password Reset",
		intro:   "We received a request to reset the password for your account. Use the button below to choose a new one.",
		button:  "Reset Password",
		expiry:  "This link expires in %d minutes and can be used once.",
		ignore:  "If you did not request a password reset, you can ignore this email.",
	},
	models.LanguageSpanish: {
		subject: "Restablezca su contraseña de SignBridge",
		heading: "Restablecer Contraseña",
		intro:   "Recibimos una solicitud para restablecer la contraseña de su cuenta. Use el botón de abajo para elegir una nueva.",
		button:  "Restablecer Contraseña",
		expiry:  "Este enlace vence en %d minutos y solo puede usarse una vez.",
		ignore:  "Si usted no solicitó restablecer su contraseña, puede ignorar este correo.",
	},
}

// PasswordResetData is the template input for a password reset email.
type PasswordResetData struct {
	Name             string
	ResetURL         string
	ExpiresInMinutes int
}

type resetView struct {
	PasswordResetData
	L       Strings
	Lang    models.Language
	Heading string
	Intro   string
	Button  string
	Expiry  string
	Ignore  string
}

// RenderPasswordReset produces the reset email in the given language.
func RenderPasswordReset(lang models.Language, data PasswordResetData) (Message, error) {
	if lang != models.LanguageSpanish {
		lang = models.LanguageEnglish
	}
	rs := passwordReset[lang]
	v := resetView{
		PasswordResetData: data,
		L:                 labels[lang],
		Lang:              lang,
		Heading:           rs.heading,
		Intro:             rs.intro,
		Button:            rs.button,
		Expiry:            fmt.Sprintf(rs.expiry, data.ExpiresInMinutes),
		Ignore:            rs.ignore,
	}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "password_reset.html.tmpl", v); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, "password_reset.txt.tmpl", v); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	return Message{Subject: rs.subject, HTML: html.String(), Text: text.String()}, nil
}
