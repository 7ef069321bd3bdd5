package providers

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/sosnet/realtime/src/service"
	"github.com/sosnet/realtime/src/types"
)

func (r *Relay) handleClients(c fiber.Ctx) error {
	ids := r.service.GetConnectedClients()
	infos := make([]*types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		info, err := r.service.GetClientInfo(id)
		if err == nil {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ConnectedAt.Before(infos[j].ConnectedAt) })
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}

func (r *Relay) handleRooms(c fiber.Ctx) error {
	rooms := r.service.GetRooms()
	result := make([]fiber.Map, 0, len(rooms))
	for name, count := range rooms {
		result = append(result, fiber.Map{
			"room":    name,
			"members": count,
		})
	}
	return c.JSON(fiber.Map{"rooms": result, "count": len(result)})
}

// handlePush lets the platform backend emit an event after it persists
// something (a message, an SOS, a task change).
func (r *Relay) handlePush(c fiber.Ctx) error {
	event := c.Params("event")
	var req service.PushRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": err.Error()})
	}
	if err := r.service.Push(event, req); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, service.ErrUnknownEvent) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": "push_failed", "message": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"published": true, "event": event})
}
