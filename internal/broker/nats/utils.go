package nats

import (
	"strings"
)

// ToSubject converts an MQTT topic to NATS subject form.
// MQTT uses / as separator and +/# as wildcards;
// NATS uses . as separator and */> as wildcards.
func ToSubject(topic string) string {
	subject := strings.ReplaceAll(topic, "+", "*")
	subject = strings.ReplaceAll(subject, "#", ">")
	return strings.ReplaceAll(subject, "/", ".")
}

// ToTopic converts a NATS subject back to MQTT topic form.
func ToTopic(subject string) string {
	topic := strings.ReplaceAll(subject, "*", "+")
	topic = strings.ReplaceAll(topic, ">", "#")
	return strings.ReplaceAll(topic, ".", "/")
}
