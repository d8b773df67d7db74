package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/logger"
	"tapspot/models"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
	previewMaxLen       = 100
)

// DialogService - диалоги и сообщения между двумя пользователями
type DialogService struct {
	db       *gorm.DB
	notifier Notifier
	presence Presence
	log      *zap.Logger
	maxLen   int
}

func NewDialogService(orm *gorm.DB, notifier Notifier, presence Presence, log *zap.Logger, maxMessageLength int) *DialogService {
	if maxMessageLength <= 0 {
		maxMessageLength = 1000
	}
	return &DialogService{
		db:       orm,
		notifier: notifier,
		presence: presence,
		log:      log,
		maxLen:   maxMessageLength,
	}
}

// MessageQuery параметры выборки сообщений. AfterID - исключающая нижняя
// граница для опроса (сообщения по возрастанию id). Без AfterID отдаётся
// последняя страница, BeforeID листает историю назад.
type MessageQuery struct {
	AfterID  *int64
	BeforeID int64
	Limit    int
}

// ConversationSummary строка списка диалогов
type ConversationSummary struct {
	ID            int64     `json:"id"`
	PeerID        int64     `json:"peer_id"`
	PeerName      string    `json:"peer_name"`
	PeerOnline    bool      `json:"peer_online"`
	LastMessage   string    `json:"last_message"`
	LastSenderID  int64     `json:"last_sender_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int64     `json:"unread_count"`
}

func (s *DialogService) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > s.maxLen {
		return "", apperr.Validation(fmt.Sprintf("message must be at most %d characters", s.maxLen))
	}
	return content, nil
}

// GetOrCreateConversation возвращает диалог пары (в любом порядке) или создает его.
func (s *DialogService) GetOrCreateConversation(ctx context.Context, userA, userB int64) (conv *models.Conversation, err error) {
	defer recordChatOperation("get_or_create_conversation", time.Now(), &err)

	if userA == userB {
		return nil, apperr.InvalidArgument("cannot start a conversation with yourself")
	}
	write := db.Write(ctx, s.db)
	for _, id := range []int64{userA, userB} {
		if _, err := findUser(write, id); err != nil {
			return nil, err
		}
	}
	return getOrCreateConversation(write, userA, userB)
}

// getOrCreateConversation не должна вызываться внутри транзакции: повторное
// чтение после конфликта вставки обязано видеть чужую закоммиченную строку.
func getOrCreateConversation(conn *gorm.DB, userA, userB int64) (*models.Conversation, error) {
	low, high := models.OrderedPair(userA, userB)
	conv, err := findConversationByPair(conn, low, high)
	if err != nil || conv != nil {
		return conv, err
	}

	now := time.Now()
	created := &models.Conversation{
		UserLowID:     low,
		UserHighID:    high,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	// при гонке вставка второй стороны тихо ничего не делает
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(created).Error; err != nil {
		return nil, apperr.Internal("create conversation", err)
	}
	conv, err = findConversationByPair(conn, low, high)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.Internal("create conversation", errors.New("conversation missing after insert"))
	}
	return conv, nil
}

func findConversationByPair(conn *gorm.DB, low, high int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := conn.Where("user_low_id = ? AND user_high_id = ?", low, high).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("load conversation", err)
	}
	return &conv, nil
}

func findConversation(conn *gorm.DB, id int64) (*models.Conversation, error) {
	var conv models.Conversation
	if err := conn.First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.Internal("load conversation", err)
	}
	return &conv, nil
}

// SendMessage добавляет сообщение в диалог, увеличивает счётчик
// непрочитанных получателя и пытается доставить событие онлайн.
func (s *DialogService) SendMessage(ctx context.Context, conversationID, senderID int64, content string) (msg *models.Message, err error) {
	defer recordChatOperation("send_message", time.Now(), &err)

	content, err = s.validateContent(content)
	if err != nil {
		return nil, err
	}

	var (
		conv       *models.Conversation
		senderName string
		sent       models.Message
	)
	err = db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = findConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(senderID) {
			return apperr.Forbidden("not a member of this conversation")
		}
		sender, err := findUser(tx, senderID)
		if err != nil {
			return err
		}
		senderName = sender.DisplayName()

		// Счётчик обновляется до вставки: блокировка строки диалога
		// упорядочивает отправителей, и id сообщений диалога выдаются
		// в порядке коммитов, без дыр для опроса по after_id.
		column := conv.UnreadColumn(conv.Peer(senderID))
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return apperr.Internal("increment unread", err)
		}

		sent = models.Message{
			ConversationID: conv.ID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(&sent).Error; err != nil {
			return apperr.Internal("create message", err)
		}

		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumns(map[string]interface{}{
			"last_message_id":      sent.ID,
			"last_sender_id":       senderID,
			"last_message_preview": preview(content),
			"last_message_at":      sent.CreatedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.pushMessage(ctx, conv, &sent, senderName)
	return &sent, nil
}

// SendTo отправляет сообщение пользователю, создавая диалог при первом контакте
func (s *DialogService) SendTo(ctx context.Context, senderID, receiverID int64, content string) (*models.Message, error) {
	if senderID == receiverID {
		return nil, apperr.InvalidArgument("cannot send a message to yourself")
	}
	if _, err := s.validateContent(content); err != nil {
		return nil, err
	}
	conv, err := s.GetOrCreateConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	return s.SendMessage(ctx, conv.ID, senderID, content)
}

func (s *DialogService) pushMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, senderName string) {
	if s.notifier == nil {
		return
	}
	receiverID := conv.Peer(msg.SenderID)
	payload := &MessagePayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
	if !s.notifier.Notify(ctx, receiverID, Event{Type: EventMessage, ConversationID: conv.ID, Message: payload}) {
		s.log.Debug("receiver offline, message stored only",
			logger.ConversationID(conv.ID), zap.Int64("receiver_id", receiverID))
	}
	// остальные сессии отправителя
	s.notifier.Notify(ctx, msg.SenderID, Event{Type: EventMessage, ConversationID: conv.ID, Message: payload, IsMe: true})
}

// ListMessages сообщения диалога в порядке создания. Только для участников.
func (s *DialogService) ListMessages(ctx context.Context, conversationID, viewerID int64, q MessageQuery) (msgs []models.Message, err error) {
	defer recordChatOperation("list_messages", time.Now(), &err)

	read := db.Read(ctx, s.db)
	conv, err := findConversation(read, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(viewerID) {
		return nil, apperr.Forbidden("not a member of this conversation")
	}
	return listMessages(read, conv.ID, q)
}

// ListMessagesWithPeer то же, но диалог ищется по собеседнику. Если диалога
// ещё нет, возвращается пустой список, и диалог не создаётся.
func (s *DialogService) ListMessagesWithPeer(ctx context.Context, userID, peerID int64, q MessageQuery) (*models.Conversation, []models.Message, error) {
	if userID == peerID {
		return nil, nil, apperr.InvalidArgument("cannot open a conversation with yourself")
	}
	read := db.Read(ctx, s.db)
	if _, err := findUser(read, peerID); err != nil {
		return nil, nil, err
	}
	low, high := models.OrderedPair(userID, peerID)
	conv, err := findConversationByPair(read, low, high)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, []models.Message{}, nil
	}
	msgs, err := listMessages(read, conv.ID, q)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func listMessages(conn *gorm.DB, conversationID int64, q MessageQuery) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	msgs := make([]models.Message, 0, limit)
	query := conn.Where("conversation_id = ?", conversationID).Limit(limit)
	if q.AfterID != nil {
		err := query.Where("id > ?", *q.AfterID).Order("id ASC").Find(&msgs).Error
		if err != nil {
			return nil, apperr.Internal("list messages", err)
		}
		return msgs, nil
	}

	if q.BeforeID > 0 {
		query = query.Where("id < ?", q.BeforeID)
	}
	if err := query.Order("id DESC").Find(&msgs).Error; err != nil {
		return nil, apperr.Internal("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead обнуляет счётчик непрочитанных userID и проставляет read_at
// сообщениям собеседника. Счётчик собеседника не меняется.
func (s *DialogService) MarkRead(ctx context.Context, conversationID, userID int64) (marked int64, err error) {
	defer recordChatOperation("mark_read", time.Now(), &err)

	var conv *models.Conversation
	err = db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = findConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasMember(userID) {
			return apperr.Forbidden("not a member of this conversation")
		}
		// сначала строка диалога: параллельный SendMessage ждёт нашего коммита
		column := conv.UnreadColumn(userID)
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			UpdateColumn(column, 0).Error; err != nil {
			return apperr.Internal("reset unread", err)
		}
		res := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conv.ID, userID).
			Update("read_at", time.Now())
		if res.Error != nil {
			return apperr.Internal("mark messages read", res.Error)
		}
		marked = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, conv.Peer(userID), Event{Type: EventRead, ConversationID: conv.ID, ReaderID: userID})
	}
	return marked, nil
}

// ListConversations диалоги пользователя, самые свежие первыми
func (s *DialogService) ListConversations(ctx context.Context, userID int64) (list []ConversationSummary, err error) {
	defer recordChatOperation("list_conversations", time.Now(), &err)

	read := db.Read(ctx, s.db)
	var convs []models.Conversation
	err = read.Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("last_message_at DESC, id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, apperr.Internal("list conversations", err)
	}

	peerIDs := make([]int64, 0, len(convs))
	for i := range convs {
		peerIDs = append(peerIDs, convs[i].Peer(userID))
	}
	names, err := displayNames(read, peerIDs)
	if err != nil {
		return nil, apperr.Internal("load peers", err)
	}

	list = make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		peerID := c.Peer(userID)
		summary := ConversationSummary{
			ID:            c.ID,
			PeerID:        peerID,
			PeerName:      names[peerID],
			LastMessage:   c.LastMessagePreview,
			LastSenderID:  c.LastSenderID,
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadFor(userID),
		}
		if s.presence != nil {
			summary.PeerOnline = s.presence.IsOnline(ctx, peerID)
		}
		list = append(list, summary)
	}
	return list, nil
}

// UnreadTotal сумма непрочитанных по всем диалогам пользователя
func (s *DialogService) UnreadTotal(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := db.Read(ctx, s.db).Model(&models.Conversation{}).
		Select("COALESCE(SUM(CASE WHEN user_low_id = ? THEN low_unread ELSE high_unread END), 0)", userID).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Row().Scan(&total)
	if err != nil {
		return 0, apperr.Internal("count unread", err)
	}
	return total, nil
}

// Unread счётчик непрочитанных userID в одном диалоге
func (s *DialogService) Unread(ctx context.Context, conversationID, userID int64) (int64, error) {
	conv, err := findConversation(db.Write(ctx, s.db), conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasMember(userID) {
		return 0, apperr.Forbidden("not a member of this conversation")
	}
	return conv.UnreadFor(userID), nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewMaxLen {
		return content
	}
	return string([]rune(content)[:previewMaxLen]) + "..."
}
