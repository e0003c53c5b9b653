package channel

import (
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// TableAction is carried in table_update messages sent by clients.
type TableAction struct {
	Action string                `json:"action"`
	Role   enums.ParticipantRole `json:"role,omitempty"`
}

// OrderStatus is the body of an order_status_change message.
type OrderStatus struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// JoinTable announces interest in tableID. Membership is not replayed after a
// reconnect, so callers send it again on every connect.
func (m *Manager) JoinTable(tableID string, role enums.ParticipantRole) bool {
	if role == "" {
		role = enums.RoleWaiter
	}
	return m.sendData(enums.MessageTableUpdate, tableID, TableAction{Action: "join", Role: role})
}

func (m *Manager) LeaveTable(tableID string) bool {
	return m.sendData(enums.MessageTableUpdate, tableID, TableAction{Action: "leave"})
}

func (m *Manager) NotifyNewOrder(tableID string, order any) bool {
	return m.sendData(enums.MessageNewOrder, tableID, order)
}

func (m *Manager) UpdateOrderStatus(tableID, orderID, status string) bool {
	return m.sendData(enums.MessageOrderStatusChange, tableID, OrderStatus{OrderID: orderID, Status: status})
}

func (m *Manager) sendData(msgType enums.MessageType, tableID string, data any) bool {
	msg, err := types.NewMessage(msgType, tableID, data)
	if err != nil {
		return false
	}
	return m.Send(msg)
}
