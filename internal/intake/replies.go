package intake

import (
	"fmt"
	"strings"

	"github.com/gbcenter/intake-ai/internal/schedule"
)

// Canned replies for the single configured locale (es-MX). User-visible
// failures are always an apology plus an alternative path, never diagnostics.
const (
	replyEmergency = "Si es una urgencia, por favor acude a urgencias o llama al 911."

	replyLocation = "Estamos en **GBC Gastro Bariatric Center**, Torre Plétora Urban Center (2º piso), Pachuca."

	replyPricing = "Consulta de valoración: **$1200 MXN** (~90 min). Cirugía depende del procedimiento: **manga desde $70,000** y **bypass desde $85,000**. Se confirma en consulta."

	replyNotOffered = "No realizamos **CPRE, endoscopias** ni manejo de **diarrea crónica**. Podemos orientarte con un centro especializado."

	replyGastro = "Atendemos vesícula, hernias (inguinal/umbilical/hiato), reflujo, acalasia, gastritis y colitis. ¿Deseas agendar **valoración** ($1200 MXN, 90 min)?"

	replyHuman = "Con gusto te comunico con un asesor humano. ¿Prefieres mensaje por WhatsApp o llamada?"

	replyTriageIntro = "Perfecto. Para orientarte mejor, cuéntame en tus palabras: **edad**, **peso** y **estatura** (como gustes), y si tienes alguna **enfermedad** (diabetes, hipertensión, etc.)."

	replyAskName = "Perfecto. ¿Cuál es tu **nombre completo** para agendar?"

	replyNoSlots = "No encuentro horarios libres en las próximas semanas. ¿Propones fecha/hora y te confirmamos?"

	replySlotIndexRetry = "Responde con el **número** del horario elegido."

	replyBookingDone = "¡Listo! Dejé tu cita en **tentativa**. Te confirmamos por este medio."

	replyBookingFailed = "No pude registrar la cita ahora mismo. ¿Te contactamos para confirmarla?"

	replyBookingDeclined = "Sin problema. ¿Quieres ver otros horarios o que te contactemos?"

	replyBMIRetry = "No pude calcular tu IMC. ¿Me confirmas peso en kg y estatura en cm o en metros? (Ej. 112 kg y 1.68 m)"

	replyFAQSleeve = "La **manga gástrica** reduce el tamaño del estómago; requiere evaluación integral. ¿Deseas agendar valoración ($1200 MXN, 90 min)?"

	replyFAQBypass = "El **bypass gástrico** favorece pérdida de peso y control metabólico. ¿Agendamos valoración?"

	// defaultFallbackReply must never be empty; it is the floor under every
	// reply-generation failure.
	defaultFallbackReply = "Gracias por tu mensaje. ¿En qué puedo ayudarte?"
)

// Required triage fields as the patient sees them.
const (
	fieldNameAge    = "edad"
	fieldNameWeight = "peso"
	fieldNameHeight = "estatura"
)

// joinNatural renders a field list as natural Spanish: "edad, peso y estatura".
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
	}
}

func missingFieldsReply(missing []string) string {
	return fmt.Sprintf("Gracias. Me falta **%s**. Puedes decirlo como quieras (ej. \"tengo 38, peso 112 kg y mido 1.68\").", joinNatural(missing))
}

func candidacyReply(bmi float64) string {
	return fmt.Sprintf("Tu **IMC es %.1f**. Con IMC ≥30, **sí podrías ser candidato** a cirugía bariátrica.\n"+
		"Seguimos un **protocolo prequirúrgico** con valoración del equipo multidisciplinario para definir el mejor procedimiento.\n"+
		"¿Deseas **agendar una valoración** ($1200 MXN, ~90 min) para resolver dudas y planear tu tratamiento?", bmi)
}

func nonSurgicalReply(bmi float64) string {
	return fmt.Sprintf("Tu **IMC es %.1f**. Con IMC <30, opciones como **balón** o **medicamentos** ayudan cuando hay ~10–15 kg sobre el ideal, pero **no tienen la potencia** de la cirugía para normalizar peso.\n"+
		"Si lo deseas, podemos ver manejo no quirúrgico o **agendar valoración** para revisar tu caso.", bmi)
}

func slotListReply(slots []schedule.Slot) string {
	var sb strings.Builder
	sb.WriteString("Horarios disponibles (responde con el número):\n")
	for i, slot := range slots {
		fmt.Fprintf(&sb, "%d) %s\n", i+1, slot.Label)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func confirmSlotReply(label string) string {
	return fmt.Sprintf("¿Confirmas tu cita para **%s**? (sí/no)", label)
}

func bookingSummary(patientName string) (summary, description string) {
	summary = fmt.Sprintf("Valoración GBC - %s", patientName)
	description = fmt.Sprintf("Cita solicitada por WhatsApp. Paciente: %s.", patientName)
	return summary, description
}
