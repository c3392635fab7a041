package domain

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	ProspectCreated   = "ProspectCreated"
	ProspectUpdated   = "ProspectUpdated"
	ProspectDeleted   = "ProspectDeleted"
	StudentCreated    = "StudentCreated"
	StudentUpdated    = "StudentUpdated"
	StudentDeleted    = "StudentDeleted"
	InstructorCreated = "InstructorCreated"
	InstructorUpdated = "InstructorUpdated"
	InstructorDeleted = "InstructorDeleted"
)

// Topics del broker, uno por familia de entidad.
const (
	ProspectTopic   = "prospect"
	StudentTopic    = "student"
	InstructorTopic = "instructor"
)

// NewTopicRegistry devuelve el mapeo estático event_type → topic que
// consume el Publisher. Un event_type fuera de este mapa es un error de
// configuración, nunca un caso de retry.
func NewTopicRegistry() map[string]string {
	return map[string]string{
		ProspectCreated:   ProspectTopic,
		ProspectUpdated:   ProspectTopic,
		ProspectDeleted:   ProspectTopic,
		StudentCreated:    StudentTopic,
		StudentUpdated:    StudentTopic,
		StudentDeleted:    StudentTopic,
		InstructorCreated: InstructorTopic,
		InstructorUpdated: InstructorTopic,
		InstructorDeleted: InstructorTopic,
	}
}

// EventTypeFor compone el tipo de evento a partir de la entidad y la acción
// ("Created", "Updated", "Deleted").
func EventTypeFor(entity EntityType, action string) string {
	switch entity {
	case EntityProspect:
		return "Prospect" + action
	case EntityStudent:
		return "Student" + action
	case EntityInstructor:
		return "Instructor" + action
	default:
		return ""
	}
}
