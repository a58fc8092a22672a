// Package bot implements the operator conversation: cabinet management,
// campaign listing and the tracking toggle, driven by chat updates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

// State is the position of one owner in the conversation.
type State int

const (
	StateMainMenu State = iota
	StateAddName
	StateAddKey
	StateSelectForEdit
	StateEditing
	StateEditKey
	StateSelectForCampaigns
	StateSelectForTracking
)

func (s State) String() string {
	switch s {
	case StateMainMenu:
		return "main_menu"
	case StateAddName:
		return "add_name"
	case StateAddKey:
		return "add_key"
	case StateSelectForEdit:
		return "select_for_edit"
	case StateEditing:
		return "editing"
	case StateEditKey:
		return "edit_key"
	case StateSelectForCampaigns:
		return "select_for_campaigns"
	case StateSelectForTracking:
		return "select_for_tracking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Keyboard is a reply keyboard. Remove hides the current keyboard instead.
type Keyboard struct {
	Rows   [][]string
	Remove bool
}

// Inbound is one text message from an owner.
type Inbound struct {
	UpdateID int64
	Owner    tracking.OwnerID
	Text     string
}

// Replier sends a reply to the owner's chat, splitting long text as needed.
// kb is attached to the reply; nil leaves the current keyboard alone.
type Replier interface {
	Reply(ctx context.Context, owner tracking.OwnerID, text string, kb *Keyboard) error
}

// Tracker is the part of tracking.Registry the conversation drives.
type Tracker interface {
	Toggle(ctx context.Context, owner tracking.OwnerID, name string) (bool, error)
	IsTracking(owner tracking.OwnerID, cabinet string) bool
	Rename(ctx context.Context, owner tracking.OwnerID, before, after tracking.Cabinet) error
}

type session struct {
	mu    sync.Mutex
	state State

	// name typed in AddName, waiting for its key
	pendingName string

	// cabinet being edited and the new name typed in Editing
	editTarget  string
	editNewName string
}

func (s *session) reset() {
	s.state = StateMainMenu
	s.pendingName = ""
	s.editTarget = ""
	s.editNewName = ""
}

// Handler runs the conversation state machine. Each owner has its own
// session; updates for one owner are handled one at a time.
type Handler struct {
	records *tracking.Records
	tracker Tracker
	fetcher tracking.Fetcher
	replier Replier
	logger  log.Logger

	mu       sync.Mutex
	sessions map[tracking.OwnerID]*session
}

// NewHandler creates a Handler.
func NewHandler(records *tracking.Records, tracker Tracker, fetcher tracking.Fetcher, replier Replier, logger log.Logger) *Handler {
	if records == nil {
		panic(xerrors.New("records are required"))
	}
	if tracker == nil {
		panic(xerrors.New("tracker is required"))
	}
	if fetcher == nil {
		panic(xerrors.New("fetcher is required"))
	}
	if replier == nil {
		panic(xerrors.New("replier is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		records:  records,
		tracker:  tracker,
		fetcher:  fetcher,
		replier:  replier,
		logger:   logger,
		sessions: make(map[tracking.OwnerID]*session),
	}
}

// State returns the owner's current conversation state.
func (h *Handler) State(owner tracking.OwnerID) State {
	s := h.session(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (h *Handler) session(owner tracking.OwnerID) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[owner]
	if !ok {
		s = &session{}
		h.sessions[owner] = s
	}
	return s
}

// Handle processes one inbound message and sends the replies. The returned
// error is a delivery or storage failure; conversation errors are answered
// in the chat.
func (h *Handler) Handle(ctx context.Context, in Inbound) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}

	s := h.session(in.Owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	L := h.logger.With("owner", string(in.Owner), "state", s.state.String())
	ctx = log.WithContext(ctx, L)

	switch {
	case isCommand(text, "start"):
		return h.start(ctx, in.Owner, s)
	case isCommand(text, "cancel"):
		s.reset()
		return h.reply(ctx, in.Owner, msgCancelled, mainKeyboard())
	}

	var err error
	switch s.state {
	case StateAddName:
		err = h.addName(ctx, in.Owner, s, text)
	case StateAddKey:
		err = h.addKey(ctx, in.Owner, s, text)
	case StateSelectForEdit:
		err = h.selectForEdit(ctx, in.Owner, s, text)
	case StateEditing:
		err = h.editing(ctx, in.Owner, s, text)
	case StateEditKey:
		err = h.editKey(ctx, in.Owner, s, text)
	case StateSelectForCampaigns:
		err = h.selectForCampaigns(ctx, in.Owner, s, text)
	case StateSelectForTracking:
		err = h.selectForTracking(ctx, in.Owner, s, text)
	default:
		err = h.mainMenu(ctx, in.Owner, s, text)
	}
	if err != nil {
		L.Error(ctx, err, "conversation step failed")
		s.reset()
		return errors.Join(err, h.reply(ctx, in.Owner, msgInternalError, mainKeyboard()))
	}
	return nil
}

func isCommand(text, name string) bool {
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.EqualFold(cmd, "/"+name)
}

func (h *Handler) reply(ctx context.Context, owner tracking.OwnerID, text string, kb *Keyboard) error {
	return h.replier.Reply(ctx, owner, text, kb)
}

func (h *Handler) start(ctx context.Context, owner tracking.OwnerID, s *session) error {
	s.reset()
	rec, err := h.records.Get(ctx, owner)
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info(ctx, "session started", "cabinets", len(rec.Cabinets))
	return h.reply(ctx, owner, msgWelcome, mainKeyboard())
}

func (h *Handler) mainMenu(ctx context.Context, owner tracking.OwnerID, s *session, text string) error {
	switch {
	case isButton(text, btnAddCabinet):
		ok, err := h.records.CanAddCabinet(ctx, owner)
		if err != nil {
			return err
		}
		if !ok {
			return h.reply(ctx, owner, limitMessage(h.records.MaxCabinets()), mainKeyboard())
		}
		s.state = StateAddName
		return h.reply(ctx, owner, msgAskName, removeKeyboard())

	case isButton(text, btnEditCabinet):
		return h.offerCabinets(ctx, owner, s, StateSelectForEdit, msgSelectEdit, msgNoCabinetsEdit)

	case isButton(text, btnShowCampaigns):
		return h.offerCabinets(ctx, owner, s, StateSelectForCampaigns, msgSelectCampaigns, msgNoCabinets)

	case isButton(text, btnTracking):
		rec, err := h.records.Get(ctx, owner)
		if err != nil {
			return err
		}
		if len(rec.Cabinets) == 0 {
			return h.reply(ctx, owner, msgNoCabinets, mainKeyboard())
		}
		s.state = StateSelectForTracking
		kb := trackingKeyboard(rec.Cabinets, func(name string) bool { return h.tracker.IsTracking(owner, name) })
		return h.reply(ctx, owner, msgSelectTracking, kb)

	default:
		return h.reply(ctx, owner, msgUseMenu, mainKeyboard())
	}
}

func (h *Handler) offerCabinets(ctx context.Context, owner tracking.OwnerID, s *session, next State, prompt, empty string) error {
	rec, err := h.records.Get(ctx, owner)
	if err != nil {
		return err
	}
	if len(rec.Cabinets) == 0 {
		return h.reply(ctx, owner, empty, mainKeyboard())
	}
	s.state = next
	return h.reply(ctx, owner, prompt, cabinetKeyboard(rec.Cabinets))
}

func (h *Handler) addName(ctx context.Context, owner tracking.OwnerID, s *session, name string) error {
	if _, err := h.records.Cabinet(ctx, owner, name); err == nil {
		return h.reply(ctx, owner, fmt.Sprintf("A cabinet named «%s» already exists. Enter another name:", name), removeKeyboard())
	} else if !errors.Is(err, tracking.ErrCabinetNotFound) {
		return err
	}
	s.pendingName = name
	s.state = StateAddKey
	return h.reply(ctx, owner, fmt.Sprintf("Name: «%s». Now enter the WB API key for this cabinet:", name), removeKeyboard())
}

func (h *Handler) addKey(ctx context.Context, owner tracking.OwnerID, s *session, key string) error {
	name := s.pendingName
	err := h.records.AddCabinet(ctx, owner, tracking.Cabinet{Name: name, Key: key})
	s.reset()
	switch {
	case err == nil:
		log.FromContext(ctx).Info(ctx, "cabinet added", "cabinet", name)
		return h.reply(ctx, owner, fmt.Sprintf("Cabinet «%s» added!", name), mainKeyboard())
	case errors.Is(err, tracking.ErrCabinetLimit):
		return h.reply(ctx, owner, limitMessage(h.records.MaxCabinets()), mainKeyboard())
	case errors.Is(err, tracking.ErrDuplicateCabinet):
		return h.reply(ctx, owner, fmt.Sprintf("A cabinet named «%s» already exists.", name), mainKeyboard())
	case errors.Is(err, tracking.ErrEmptyCabinetName):
		return h.reply(ctx, owner, msgEmptyName, mainKeyboard())
	default:
		return err
	}
}

func (h *Handler) selectForEdit(ctx context.Context, owner tracking.OwnerID, s *session, text string) error {
	if isButton(text, btnCancel) {
		s.reset()
		return h.reply(ctx, owner, msgEditCancelled, mainKeyboard())
	}
	cab, err := h.records.Cabinet(ctx, owner, text)
	if errors.Is(err, tracking.ErrCabinetNotFound) {
		s.reset()
		return h.reply(ctx, owner, msgNotFound, mainKeyboard())
	}
	if err != nil {
		return err
	}
	s.editTarget = cab.Name
	s.state = StateEditing
	return h.reply(ctx, owner,
		fmt.Sprintf("You selected cabinet «%s» for editing.\nEnter a new name (or send the current one to keep it):", cab.Name),
		removeKeyboard())
}

func (h *Handler) editing(ctx context.Context, owner tracking.OwnerID, s *session, name string) error {
	other, err := h.records.Cabinet(ctx, owner, name)
	switch {
	case err == nil && !strings.EqualFold(other.Name, s.editTarget):
		return h.reply(ctx, owner, fmt.Sprintf("A cabinet named «%s» already exists. Enter another name:", name), removeKeyboard())
	case err != nil && !errors.Is(err, tracking.ErrCabinetNotFound):
		return err
	}
	s.editNewName = name
	s.state = StateEditKey
	return h.reply(ctx, owner, msgAskNewKey, removeKeyboard())
}

func (h *Handler) editKey(ctx context.Context, owner tracking.OwnerID, s *session, key string) error {
	if key == keepKey {
		key = ""
	}
	target, newName := s.editTarget, s.editNewName
	s.reset()

	before, after, err := h.records.EditCabinet(ctx, owner, target, tracking.Cabinet{Name: newName, Key: key})
	switch {
	case errors.Is(err, tracking.ErrCabinetNotFound):
		return h.reply(ctx, owner, msgNotFound, mainKeyboard())
	case errors.Is(err, tracking.ErrDuplicateCabinet):
		return h.reply(ctx, owner, fmt.Sprintf("A cabinet named «%s» already exists.", newName), mainKeyboard())
	case err != nil:
		return err
	}

	if err := h.tracker.Rename(ctx, owner, before, after); err != nil {
		log.FromContext(ctx).Error(ctx, err, "failed to re-key tracking job", "from", before.Name, "to", after.Name)
	}
	log.FromContext(ctx).Info(ctx, "cabinet edited", "from", before.Name, "to", after.Name, "key_changed", before.Key != after.Key)
	return h.reply(ctx, owner, fmt.Sprintf("Cabinet updated. New name: «%s».", after.Name), mainKeyboard())
}

func (h *Handler) selectForCampaigns(ctx context.Context, owner tracking.OwnerID, s *session, text string) error {
	s.reset()
	if isButton(text, btnCancel) {
		return h.reply(ctx, owner, msgBackToMenu, mainKeyboard())
	}
	cab, err := h.records.Cabinet(ctx, owner, text)
	if errors.Is(err, tracking.ErrCabinetNotFound) {
		return h.reply(ctx, owner, msgNotFound, mainKeyboard())
	}
	if err != nil {
		return err
	}

	campaigns, err := h.fetcher.Fetch(ctx, cab.Key)
	if err != nil {
		var fe *tracking.FetchError
		if errors.As(err, &fe) {
			log.FromContext(ctx).Warn(ctx, "campaign listing rejected", "cabinet", cab.Name, "status", fe.StatusCode)
			return h.reply(ctx, owner, fmt.Sprintf("Error %d:\n%s", fe.StatusCode, fe.Body), mainKeyboard())
		}
		log.FromContext(ctx).Error(ctx, err, "campaign listing failed", "cabinet", cab.Name)
		return h.reply(ctx, owner, msgFetchFailed, mainKeyboard())
	}
	return h.reply(ctx, owner, tracking.RenderCampaigns(campaigns), mainKeyboard())
}

func (h *Handler) selectForTracking(ctx context.Context, owner tracking.OwnerID, s *session, text string) error {
	s.reset()
	if isButton(text, btnCancel) {
		return h.reply(ctx, owner, msgBackToMenu, mainKeyboard())
	}

	cab, err := h.resolveLabel(ctx, owner, text)
	if errors.Is(err, tracking.ErrCabinetNotFound) {
		return h.reply(ctx, owner, msgNotFound, mainKeyboard())
	}
	if err != nil {
		return err
	}

	on, err := h.tracker.Toggle(ctx, owner, cab.Name)
	if errors.Is(err, tracking.ErrCabinetNotFound) {
		return h.reply(ctx, owner, msgNotFound, mainKeyboard())
	}
	if err != nil {
		return err
	}
	return h.reply(ctx, owner, trackingMessage(cab.Name, on), mainKeyboard())
}

// resolveLabel matches a tracking keyboard label to a cabinet. The label is
// tried as typed first, then without its trailing indicator.
func (h *Handler) resolveLabel(ctx context.Context, owner tracking.OwnerID, label string) (tracking.Cabinet, error) {
	cab, err := h.records.Cabinet(ctx, owner, label)
	if err == nil || !errors.Is(err, tracking.ErrCabinetNotFound) {
		return cab, err
	}
	stripped := stripIndicator(label)
	if stripped == label {
		return tracking.Cabinet{}, err
	}
	return h.records.Cabinet(ctx, owner, stripped)
}
