package console

import "strings"

type command int

const (
	cmdUnknown command = iota
	cmdAddPatient
	cmdEstimateWait
	cmdDoctorAvailability
	cmdEquipmentAvailability
	cmdRoomAvailability
	cmdReleasePatient
	cmdDisplayQueue
	cmdHelp
	cmdQuit
)

// menu lists the commands in display order.
var menu = []struct {
	name string
	desc string
}{
	{"add-patient", "register a new patient in the waiting line"},
	{"estimate-wait", "estimated wait for the next patient"},
	{"doctor-availability", "doctors available"},
	{"equipment-availability", "medical equipment available"},
	{"room-availability", "rooms available"},
	{"release-patient", "discharge the highest-priority patient"},
	{"display-queue", "show the waiting line"},
	{"help", "show this menu"},
	{"quit", "stop the console"},
}

// commandNames maps every accepted spelling, including the French command
// words earlier desk terminals used, to a command.
var commandNames = map[string]command{
	"add-patient":            cmdAddPatient,
	"estimate-wait":          cmdEstimateWait,
	"doctor-availability":    cmdDoctorAvailability,
	"equipment-availability": cmdEquipmentAvailability,
	"room-availability":      cmdRoomAvailability,
	"release-patient":        cmdReleasePatient,
	"display-queue":          cmdDisplayQueue,
	"help":                   cmdHelp,
	"quit":                   cmdQuit,
	"exit":                   cmdQuit,

	"ajouter_patient":          cmdAddPatient,
	"estimation_du_temps":      cmdEstimateWait,
	"disponibilite_medecin":    cmdDoctorAvailability,
	"disponibilite_materiels":  cmdEquipmentAvailability,
	"disponibilite_salle":      cmdRoomAvailability,
	"liberer_patient":          cmdReleasePatient,
	"affichage_file_d'attente": cmdDisplayQueue,
	"quitter":                  cmdQuit,
}

func parseCommand(s string) command {
	if c, ok := commandNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return cmdUnknown
}
