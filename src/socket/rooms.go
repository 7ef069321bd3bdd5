package socket

import "github.com/sosnet/realtime/src/types"

// JoinRoom asks the server to add this connection to room. Fire and forget.
func (m *Manager) JoinRoom(room string) {
	if err := m.Emit(types.EventJoinRoom, types.RoomPayload{Room: room}); err != nil {
		m.logger.Debug().Err(err).Str("room", room).Msg("join room not sent")
	}
}

// LeaveRoom asks the server to drop this connection from room. Fire and forget.
func (m *Manager) LeaveRoom(room string) {
	if err := m.Emit(types.EventLeaveRoom, types.RoomPayload{Room: room}); err != nil {
		m.logger.Debug().Err(err).Str("room", room).Msg("leave room not sent")
	}
}
