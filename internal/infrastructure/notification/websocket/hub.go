package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	MessageTypeProbe   = "probe"
	MessageTypeTicket  = "ticket"
	MessageTypeSkipped = "skipped"
)

// Hub управляет WebSocket клиентами и рассылает им ленту проб и тикетов.
// Реализует port.ProbeObserver и port.TicketObserver
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для broadcast сообщений
	broadcast chan Message

	register   chan *Client
	unregister chan *Client
	// done закрывается, когда Run завершился
	done chan struct{}

	// Mutex для защиты clients map
	mu sync.RWMutex

	logger *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run обслуживает hub до отмены ctx (запускать в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			// Удаление из map требует эксклюзивной блокировки
			h.mu.Lock()
			for client := range h.clients {
				if !client.filter.Match(message) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Канал клиента заполнен, отключаем его
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ObserveProbe рассылает результат пробы (реализация port.ProbeObserver)
func (h *Hub) ObserveProbe(_ context.Context, outcome dto.ProbeOutcomeDTO) {
	h.publish(Message{Type: MessageTypeProbe, Monitor: outcome.MonitorName, Data: outcome})
}

// TicketCreated рассылает созданный тикет (реализация port.TicketObserver)
func (h *Hub) TicketCreated(_ context.Context, event dto.IncidentCreatedEventDTO) {
	h.publish(Message{Type: MessageTypeTicket, Monitor: event.MonitorName, Data: event})
}

func (h *Hub) EvaluationSkipped(_ context.Context, skipped dto.SkippedEvaluationDTO) {
	h.publish(Message{Type: MessageTypeSkipped, Monitor: skipped.MonitorName, Data: skipped})
}

func (h *Hub) publish(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Message представляет сообщение для отправки клиенту
type Message struct {
	Type    string      `json:"type"` // "probe", "ticket" или "skipped"
	Monitor string      `json:"monitor,omitempty"`
	Data    interface{} `json:"data"`
}
