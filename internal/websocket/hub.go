package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskline/chatgate/internal/models"
)

// Identity хранит подтвержденную личность соединения.
// Привязывается при подключении и не меняется до реконнекта.
type Identity struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        models.Role
}

// Relay дублирует события комнаты на другие узлы.
// В одиночном процессе не используется.
type Relay interface {
	Publish(room string, payload []byte) error
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Соединения по UserID, персональный канал пользователя
	// (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Соединения в комнатах
	rooms map[RoomKey]map[uuid.UUID]*Client

	// Каналы для регистрации/отмены регистрации
	register   chan *Client
	unregister chan *Client

	relay Relay

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub создает новый Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		rooms:       make(map[RoomKey]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetRelay подключает внешний pub/sub для межпроцессного fan-out
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run запускает hub
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
}

// Register регистрирует нового клиента.
// После Stop становится no-op, чтобы не блокировать горутины соединений.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister отменяет регистрацию клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.userClients[client.Identity.UserID]; !ok {
		h.userClients[client.Identity.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.Identity.UserID][client.ID] = client

	log.Printf("Client registered: %s (User: %s)", client.ID, client.Identity.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	// Комнаты узнают об уходе до разрушения привязки
	for roomKey := range client.Rooms {
		h.removeFromRoomUnsafe(client, roomKey, EventUserOffline)
	}

	if userClients, ok := h.userClients[client.Identity.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.Identity.UserID)
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)

	log.Printf("Client unregistered: %s (User: %s)", client.ID, client.Identity.UserID)
}

// JoinRoom добавляет соединение в комнату и уведомляет остальных участников
func (h *Hub) JoinRoom(client *Client, roomKey RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomKey]; !ok {
		h.rooms[roomKey] = make(map[uuid.UUID]*Client)
	}
	// Повторный join не шумит в комнату
	if _, ok := h.rooms[roomKey][client.ID]; ok {
		return
	}

	h.rooms[roomKey][client.ID] = client
	client.mu.Lock()
	client.Rooms[roomKey] = true
	client.mu.Unlock()

	payload := PresencePayload{
		Room:        string(roomKey),
		UserID:      client.Identity.UserID,
		DisplayName: client.Identity.DisplayName,
	}
	if data, err := NewEvent(EventUserJoined, payload); err == nil {
		h.broadcastToRoomExcept(roomKey, data, client.ID)
	}
}

// LeaveRoom удаляет соединение из комнаты
func (h *Hub) LeaveRoom(client *Client, roomKey RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomUnsafe(client, roomKey, EventUserLeft)
}

func (h *Hub) removeFromRoomUnsafe(client *Client, roomKey RoomKey, event EventType) {
	room, ok := h.rooms[roomKey]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; !ok {
		return
	}

	delete(room, client.ID)
	client.mu.Lock()
	delete(client.Rooms, roomKey)
	client.mu.Unlock()

	if len(room) == 0 {
		delete(h.rooms, roomKey)
		return
	}

	payload := PresencePayload{
		Room:        string(roomKey),
		UserID:      client.Identity.UserID,
		DisplayName: client.Identity.DisplayName,
	}
	if data, err := NewEvent(event, payload); err == nil {
		h.broadcastToRoomExcept(roomKey, data, client.ID)
	}
}

// SendToUser отправляет событие во все соединения пользователя
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.userClients[userID]; ok {
		for _, client := range clients {
			select {
			case client.Send <- message:
			default:
				log.Printf("Client %s send channel full", client.ID)
			}
		}
	}
}

// BroadcastRoom доставляет событие всем соединениям комнаты
// и дублирует его на другие узлы через relay
func (h *Hub) BroadcastRoom(roomKey RoomKey, message []byte) {
	h.mu.RLock()
	h.broadcastToRoomExcept(roomKey, message, uuid.Nil)
	h.mu.RUnlock()

	h.publish(roomKey, message)
}

// BroadcastRoomExcept доставляет событие комнате, минуя одно соединение
func (h *Hub) BroadcastRoomExcept(roomKey RoomKey, message []byte, excludeID uuid.UUID) {
	h.mu.RLock()
	h.broadcastToRoomExcept(roomKey, message, excludeID)
	h.mu.RUnlock()

	h.publish(roomKey, message)
}

// DeliverLocal доставляет событие, пришедшее с другого узла, без повторной публикации
func (h *Hub) DeliverLocal(room string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(RoomKey(room), message, uuid.Nil)
}

func (h *Hub) publish(roomKey RoomKey, message []byte) {
	if h.relay == nil {
		return
	}
	go func() {
		if err := h.relay.Publish(string(roomKey), message); err != nil {
			log.Printf("Relay publish failed for room %s: %v", roomKey, err)
		}
	}()
}

func (h *Hub) broadcastToRoomExcept(roomKey RoomKey, message []byte, excludeID uuid.UUID) {
	if room, ok := h.rooms[roomKey]; ok {
		for _, client := range room {
			if client.ID != excludeID {
				select {
				case client.Send <- message:
				default:
					log.Printf("Client %s send channel full", client.ID)
				}
			}
		}
	}
}

// RoomUsers возвращает уникальных пользователей, подключенных к комнате
func (h *Hub) RoomUsers(roomKey RoomKey) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	if room, ok := h.rooms[roomKey]; ok {
		for _, client := range room {
			userMap[client.Identity.UserID] = true
		}
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	return users
}

// OnlineUsers возвращает всех подключенных пользователей
func (h *Hub) OnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := NewEvent(EventPing, nil)
	if err != nil {
		return
	}
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}
