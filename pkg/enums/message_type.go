package enums

import "fmt"

// MessageType is the discriminator of a realtime table message.
type MessageType string

const (
	MessageTableUpdate       MessageType = "table_update"
	MessageNewOrder          MessageType = "new_order"
	MessageParticipantJoined MessageType = "participant_joined"
	MessageParticipantLeft   MessageType = "participant_left"
	MessageOrderStatusChange MessageType = "order_status_change"
)

var validMessageTypes = []MessageType{
	MessageTableUpdate,
	MessageNewOrder,
	MessageParticipantJoined,
	MessageParticipantLeft,
	MessageOrderStatusChange,
}

// MessageTypes lists every routable message type.
func MessageTypes() []MessageType {
	return append([]MessageType(nil), validMessageTypes...)
}

// String implements fmt.Stringer.
func (m MessageType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known wire message type.
func (m MessageType) IsValid() bool {
	for _, candidate := range validMessageTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMessageType converts raw input into a MessageType.
func ParseMessageType(value string) (MessageType, error) {
	for _, candidate := range validMessageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message type %q", value)
}

// ParticipantRole distinguishes staff from guests on a table channel.
type ParticipantRole string

const (
	RoleCustomer ParticipantRole = "customer"
	RoleWaiter   ParticipantRole = "waiter"
)

// ParseParticipantRole defaults empty input to customer.
func ParseParticipantRole(value string) (ParticipantRole, error) {
	switch ParticipantRole(value) {
	case "", RoleCustomer:
		return RoleCustomer, nil
	case RoleWaiter:
		return RoleWaiter, nil
	default:
		return "", fmt.Errorf("invalid participant role %q", value)
	}
}
