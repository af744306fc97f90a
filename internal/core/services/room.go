package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"
	"roomcast/internal/infrastructure/monitoring"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// staleTimeout is how long a room may sit empty before the manager unloads it.
const staleTimeout = 240 * time.Second

// MessageFanout delivers server messages to locally connected clients. The
// client manager implements it; rooms never talk to sockets directly.
type MessageFanout interface {
	BroadcastToRoom(room domain.RoomName, msg *domain.ServerMessage)
	SendToClient(id domain.ClientID, msg *domain.ServerMessage) error
	KickClient(id domain.ClientID, code int)
}

type roomUser struct {
	info   domain.ClientInfo
	status domain.PlayerStatus
}

// Room is the per-room state machine. All request processing for one room is
// serialized behind the mutex; requests for different rooms run concurrently.
type Room struct {
	name domain.RoomName
	log  *zap.SugaredLogger

	mu                   sync.Mutex
	title                string
	description          string
	visibility           domain.Visibility
	queueMode            domain.QueueMode
	isTemporary          bool
	ownerUserID          int64
	currentSource        *domain.QueueItem
	queue                *domain.VideoQueue
	isPlaying            bool
	playbackPosition     float64
	playbackStart        *time.Time
	playbackSpeed        float64
	grants               *domain.Grants
	userRoles            map[domain.Role]map[int64]struct{}
	votes                map[string]map[domain.ClientID]struct{}
	votesToSkip          map[domain.ClientID]struct{}
	prevQueue            []*domain.QueueItem
	restoreQueueBehavior domain.RestoreQueueBehavior
	enableVoteSkip       bool
	autoSkipSegments     bool
	users                map[domain.ClientID]*roomUser
	emptySince           *time.Time
	dirty                map[string]struct{}
	pendingEvent         *undoAdditional

	fanout    MessageFanout
	extractor ports.InfoExtractor
	syncPub   ports.SyncPublisher
	snapshots ports.SnapshotCache
	metrics   *monitoring.PrometheusCollector
	tracer    trace.Tracer
}

// RoomOptions carries the persisted and creation-time state a room starts
// from. Zero values fall back to defaults.
type RoomOptions struct {
	Name                 domain.RoomName
	Title                string
	Description          string
	Visibility           domain.Visibility
	QueueMode            domain.QueueMode
	IsTemporary          bool
	OwnerUserID          int64
	Grants               *domain.Grants
	UserRoles            map[domain.Role][]int64
	Queue                []*domain.QueueItem
	PrevQueue            []*domain.QueueItem
	RestoreQueueBehavior domain.RestoreQueueBehavior
	AutoSkipSegments     bool
	EnableVoteSkip       bool
}

type RoomDeps struct {
	Fanout    MessageFanout
	Extractor ports.InfoExtractor
	SyncPub   ports.SyncPublisher
	Snapshots ports.SnapshotCache
	Metrics   *monitoring.PrometheusCollector
	Tracer    trace.Tracer
	Logger    *zap.SugaredLogger
}

func NewRoom(opts RoomOptions, deps RoomDeps) *Room {
	r := &Room{
		name:                 opts.Name,
		title:                opts.Title,
		description:          opts.Description,
		visibility:           opts.Visibility,
		queueMode:            opts.QueueMode,
		isTemporary:          opts.IsTemporary,
		ownerUserID:          opts.OwnerUserID,
		queue:                domain.NewVideoQueue(),
		playbackSpeed:        1.0,
		grants:               opts.Grants,
		userRoles:            make(map[domain.Role]map[int64]struct{}),
		votes:                make(map[string]map[domain.ClientID]struct{}),
		votesToSkip:          make(map[domain.ClientID]struct{}),
		prevQueue:            opts.PrevQueue,
		restoreQueueBehavior: opts.RestoreQueueBehavior,
		autoSkipSegments:     opts.AutoSkipSegments,
		enableVoteSkip:       opts.EnableVoteSkip,
		users:                make(map[domain.ClientID]*roomUser),
		dirty:                make(map[string]struct{}),
		fanout:               deps.Fanout,
		extractor:            deps.Extractor,
		syncPub:              deps.SyncPub,
		snapshots:            deps.Snapshots,
		metrics:              deps.Metrics,
		tracer:               deps.Tracer,
		log:                  deps.Logger.With("room", opts.Name),
	}
	if r.visibility == "" {
		r.visibility = domain.VisibilityPublic
	}
	if r.queueMode == "" {
		r.queueMode = domain.QueueModeManual
	}
	if r.restoreQueueBehavior == "" {
		r.restoreQueueBehavior = domain.RestoreQueuePrompt
	}
	if r.grants == nil {
		r.grants = domain.NewGrants()
	}
	for role, ids := range opts.UserRoles {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		r.userRoles[role] = set
	}
	if len(opts.Queue) > 0 {
		if err := r.queue.Set(opts.Queue); err != nil {
			r.log.Warnw("failed to restore queue", "error", err)
		}
	}
	r.applyRestoreBehavior()
	r.queue.SetDirtyCallback(func() { r.markDirty("queue") })
	now := time.Now()
	r.emptySince = &now
	return r
}

// applyRestoreBehavior resolves prevQueue at load time. Always restores into
// an empty queue immediately; Never discards; Prompt keeps it for an explicit
// RestoreQueueRequest.
func (r *Room) applyRestoreBehavior() {
	if len(r.prevQueue) == 0 {
		return
	}
	switch r.restoreQueueBehavior {
	case domain.RestoreQueueAlways:
		if r.queue.Length() == 0 {
			if err := r.queue.Set(r.prevQueue); err == nil {
				r.prevQueue = nil
			}
		}
	case domain.RestoreQueueNever:
		r.prevQueue = nil
	}
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) markDirty(field string) {
	r.dirty[field] = struct{}{}
}

// RealPlaybackPosition reconstructs the live position from the wall-clock
// anchor while playing.
func (r *Room) RealPlaybackPosition() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realPlaybackPositionLocked()
}

func (r *Room) realPlaybackPositionLocked() float64 {
	if r.isPlaying && r.playbackStart != nil {
		return r.playbackPosition + time.Since(*r.playbackStart).Seconds()*r.playbackSpeed
	}
	return r.playbackPosition
}

// IsStale reports whether the room has been empty long enough to unload.
func (r *Room) IsStale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emptySince != nil && time.Since(*r.emptySince) > staleTimeout
}

func (r *Room) Users() []domain.RoomUserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userListLocked()
}

func (r *Room) userListLocked() []domain.RoomUserInfo {
	list := make([]domain.RoomUserInfo, 0, len(r.users))
	for id, u := range r.users {
		list = append(list, domain.RoomUserInfo{
			ID:         id,
			Name:       u.info.Username,
			IsLoggedIn: u.info.UserID != 0,
			Role:       r.roleForUserLocked(u.info),
			Status:     u.status,
		})
	}
	return list
}

// roleForUserLocked resolves a client's role: the owner match wins, then any
// elevated membership in userRoles, then RegisteredUser for logged-in
// sessions, else UnregisteredUser.
func (r *Room) roleForUserLocked(info domain.ClientInfo) domain.Role {
	if info.UserID == 0 {
		return domain.RoleUnregisteredUser
	}
	if r.ownerUserID != 0 && info.UserID == r.ownerUserID {
		return domain.RoleOwner
	}
	role := domain.RoleRegisteredUser
	for elevated := domain.RoleTrustedUser; elevated <= domain.RoleAdministrator; elevated++ {
		if _, ok := r.userRoles[elevated][info.UserID]; ok && elevated > role {
			role = elevated
		}
	}
	return role
}

func (r *Room) clientRoleLocked(id domain.ClientID) domain.Role {
	if u, ok := r.users[id]; ok {
		return r.roleForUserLocked(u.info)
	}
	return domain.RoleUnregisteredUser
}

// VoteSkipThreshold is the number of skip votes required among n eligible
// voters.
func VoteSkipThreshold(n int) int {
	return int(math.Ceil(float64(n) / 2))
}

// ProcessRequest validates the requester's permission and applies the
// request. Permission failures leave state untouched and are returned to the
// caller alone.
func (r *Room) ProcessRequest(ctx context.Context, req domain.RoomRequest) (err error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "room.ProcessRequest")
		defer span.End()
	}
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordRequest(req.Type(), err)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	client := requestClient(req)
	role := r.clientRoleLocked(client)
	if perm, ok := domain.RequestPermission(req.Type()); ok {
		if err := r.grants.Check(role, perm); err != nil {
			r.log.Debugw("request denied", "type", req.Type(), "client", client, "role", role)
			return err
		}
	}

	r.pendingEvent = nil
	switch req := req.(type) {
	case *domain.JoinRequest:
		err = r.handleJoin(req)
	case *domain.LeaveRequest:
		err = r.handleLeave(req)
	case *domain.PlaybackRequest:
		err = r.handlePlayback(req)
	case *domain.SkipRequest:
		err = r.handleSkip(req)
	case *domain.SeekRequest:
		err = r.handleSeek(req)
	case *domain.AddRequest:
		err = r.handleAdd(ctx, req)
	case *domain.RemoveRequest:
		err = r.handleRemove(req)
	case *domain.OrderRequest:
		err = r.queue.Move(req.FromIdx, req.ToIdx)
	case *domain.VoteRequest:
		err = r.handleVote(req)
	case *domain.PromoteRequest:
		err = r.handlePromote(req, role)
	case *domain.UpdateUserRequest:
		err = r.handleUpdateUser(req)
	case *domain.ChatRequest:
		err = r.handleChat(req)
	case *domain.UndoRequest:
		err = r.handleUndo(req, role)
	case *domain.ApplySettingsRequest:
		err = r.handleApplySettings(req, role)
	case *domain.PlayNowRequest:
		err = r.handlePlayNow(ctx, req)
	case *domain.ShuffleRequest:
		r.queue.Shuffle()
	case *domain.PlaybackSpeedRequest:
		err = r.handlePlaybackSpeed(req)
	case *domain.RestoreQueueRequest:
		err = r.handleRestoreQueue(req)
	default:
		err = fmt.Errorf("unhandled request type %q", req.Type())
	}
	if err != nil {
		return err
	}
	if add := r.pendingEvent; add != nil {
		r.pendingEvent = nil
		r.publishEventLocked(ctx, req.Type(), client, add)
	}
	r.syncLocked(ctx)
	return nil
}

func requestClient(req domain.RoomRequest) domain.ClientID {
	switch req := req.(type) {
	case *domain.JoinRequest:
		return req.Client
	case *domain.LeaveRequest:
		return req.Client
	case *domain.PlaybackRequest:
		return req.Client
	case *domain.SkipRequest:
		return req.Client
	case *domain.SeekRequest:
		return req.Client
	case *domain.AddRequest:
		return req.Client
	case *domain.RemoveRequest:
		return req.Client
	case *domain.OrderRequest:
		return req.Client
	case *domain.VoteRequest:
		return req.Client
	case *domain.PromoteRequest:
		return req.Client
	case *domain.UpdateUserRequest:
		return req.Client
	case *domain.ChatRequest:
		return req.Client
	case *domain.UndoRequest:
		return req.Client
	case *domain.ApplySettingsRequest:
		return req.Client
	case *domain.PlayNowRequest:
		return req.Client
	case *domain.ShuffleRequest:
		return req.Client
	case *domain.PlaybackSpeedRequest:
		return req.Client
	case *domain.RestoreQueueRequest:
		return req.Client
	}
	return ""
}

func (r *Room) handleJoin(req *domain.JoinRequest) error {
	r.users[req.Client] = &roomUser{info: req.Info, status: domain.PlayerStatusNone}
	r.emptySince = nil
	r.markDirty("users")

	// full state for the newcomer, then tell it which entry is itself
	full, err := r.serializeSyncLocked(r.fullStateLocked())
	if err == nil {
		_ = r.fanout.SendToClient(req.Client, domain.NewSyncMessage(full))
	}
	_ = r.fanout.SendToClient(req.Client, domain.NewUserListMessage(r.userListLocked()))
	_ = r.fanout.SendToClient(req.Client, domain.NewYouMessage(req.Info))
	r.log.Infow("client joined", "client", req.Client, "users", len(r.users))
	return nil
}

func (r *Room) handleLeave(req *domain.LeaveRequest) error {
	if _, ok := r.users[req.Client]; !ok {
		return nil
	}
	delete(r.users, req.Client)
	delete(r.votesToSkip, req.Client)
	for key, set := range r.votes {
		delete(set, req.Client)
		if len(set) == 0 {
			delete(r.votes, key)
		}
	}
	if len(r.users) == 0 {
		now := time.Now()
		r.emptySince = &now
	}
	r.markDirty("users")
	r.markDirty("voteCounts")
	r.log.Infow("client left", "client", req.Client, "users", len(r.users))
	return nil
}

func (r *Room) handlePlayback(req *domain.PlaybackRequest) error {
	if req.State == r.isPlaying {
		return nil
	}
	now := time.Now()
	if req.State {
		r.playbackStart = &now
	} else {
		if r.playbackStart != nil {
			elapsed := now.Sub(*r.playbackStart).Seconds() * r.playbackSpeed
			r.playbackPosition += elapsed
			if r.metrics != nil {
				r.metrics.RecordSecondsPlayed(elapsed)
			}
		}
		r.playbackStart = nil
	}
	r.isPlaying = req.State
	r.markDirty("isPlaying")
	r.markDirty("playbackPosition")
	return nil
}

func (r *Room) handleSkip(req *domain.SkipRequest) error {
	if r.enableVoteSkip {
		r.votesToSkip[req.Client] = struct{}{}
		r.markDirty("votesToSkip")
		if len(r.votesToSkip) < VoteSkipThreshold(r.eligibleVotersLocked()) {
			return nil
		}
	}
	if r.currentSource != nil {
		skipped := *r.currentSource
		r.pendingEvent = &undoAdditional{Video: &skipped}
	}
	r.dequeueNextLocked()
	if r.metrics != nil {
		r.metrics.RecordMediaSkipped()
	}
	return nil
}

// eligibleVotersLocked counts connected users holding playback.skip.
func (r *Room) eligibleVotersLocked() int {
	n := 0
	for _, u := range r.users {
		if r.grants.Granted(r.roleForUserLocked(u.info), "playback.skip") {
			n++
		}
	}
	return n
}

func (r *Room) handleSeek(req *domain.SeekRequest) error {
	// non-finite or absent values are a no-op, not an error
	if req.Value == nil || math.IsNaN(*req.Value) || math.IsInf(*req.Value, 0) {
		return nil
	}
	r.pendingEvent = &undoAdditional{PrevPosition: r.realPlaybackPositionLocked()}
	r.playbackPosition = *req.Value
	if r.isPlaying {
		now := time.Now()
		r.playbackStart = &now
	}
	r.markDirty("playbackPosition")
	return nil
}

func (r *Room) handleAdd(ctx context.Context, req *domain.AddRequest) error {
	var toAdd []domain.VideoID
	if req.Video != nil {
		toAdd = []domain.VideoID{*req.Video}
	} else {
		toAdd = req.Videos
	}
	if len(toAdd) == 0 {
		return nil
	}
	videos, err := r.extractor.GetManyVideoInfo(ctx, toAdd)
	if err != nil {
		return fmt.Errorf("failed to resolve video info: %w", err)
	}
	items := make([]*domain.QueueItem, 0, len(videos))
	for _, v := range videos {
		if r.queue.Contains(v.VideoID) {
			return domain.ErrVideoAlreadyQueued
		}
		items = append(items, &domain.QueueItem{Video: *v})
	}
	if err := r.queue.Enqueue(items...); err != nil {
		return err
	}
	if len(items) == 1 {
		added := *items[0]
		r.pendingEvent = &undoAdditional{Video: &added}
	}
	if r.metrics != nil {
		r.metrics.RecordMediaQueued(len(items))
	}
	// an idle room starts playing the first added video immediately
	if r.currentSource == nil {
		r.dequeueNextLocked()
	}
	return nil
}

func (r *Room) handleRemove(req *domain.RemoveRequest) error {
	idx, removed, err := r.queue.Evict(req.Video)
	if err != nil {
		return err
	}
	r.pendingEvent = &undoAdditional{Video: removed, QueueIdx: idx}
	delete(r.votes, req.Video.Key())
	r.markDirty("voteCounts")
	return nil
}

func (r *Room) handleVote(req *domain.VoteRequest) error {
	key := req.Video.Key()
	if req.Add {
		if r.votes[key] == nil {
			r.votes[key] = make(map[domain.ClientID]struct{})
		}
		r.votes[key][req.Client] = struct{}{}
	} else {
		delete(r.votes[key], req.Client)
		if len(r.votes[key]) == 0 {
			delete(r.votes, key)
		}
	}
	r.markDirty("voteCounts")
	return nil
}

// promoteRoleNames maps elevated roles to the name used in manage-users
// permission strings.
var promoteRoleNames = map[domain.Role]string{
	domain.RoleAdministrator: "admin",
	domain.RoleModerator:     "moderator",
	domain.RoleTrustedUser:   "trusted-user",
}

func (r *Room) handlePromote(req *domain.PromoteRequest, actorRole domain.Role) error {
	target, ok := r.users[req.TargetID]
	if !ok {
		return domain.ErrClientNotFound
	}
	if target.info.UserID == 0 {
		return &domain.ImpossiblePromotionError{}
	}
	currentRole := r.roleForUserLocked(target.info)
	if !req.Role.Valid() || req.Role == domain.RoleOwner {
		return &domain.InvalidRoleError{Role: req.Role}
	}
	if req.Role > currentRole {
		name, ok := promoteRoleNames[req.Role]
		if !ok {
			return &domain.ImpossiblePromotionError{}
		}
		if err := r.grants.Check(actorRole, "manage-users.promote-"+name); err != nil {
			return err
		}
	} else if req.Role < currentRole {
		name, ok := promoteRoleNames[currentRole]
		if !ok {
			return &domain.ImpossiblePromotionError{}
		}
		if err := r.grants.Check(actorRole, "manage-users.demote-"+name); err != nil {
			return err
		}
	} else {
		return nil
	}
	for role := domain.RoleTrustedUser; role <= domain.RoleAdministrator; role++ {
		delete(r.userRoles[role], target.info.UserID)
	}
	if req.Role >= domain.RoleTrustedUser {
		if r.userRoles[req.Role] == nil {
			r.userRoles[req.Role] = make(map[int64]struct{})
		}
		r.userRoles[req.Role][target.info.UserID] = struct{}{}
	}
	r.markDirty("users")
	return nil
}

func (r *Room) handleUpdateUser(req *domain.UpdateUserRequest) error {
	u, ok := r.users[req.Client]
	if !ok {
		return domain.ErrClientNotFound
	}
	if req.Status != "" {
		u.status = req.Status
	}
	if req.Info.Username != "" || req.Info.UserID != 0 {
		u.info = req.Info
	}
	r.markDirty("users")
	return nil
}

func (r *Room) handleChat(req *domain.ChatRequest) error {
	if _, ok := r.users[req.Client]; !ok {
		return domain.ErrClientNotFound
	}
	from := r.userInfoLocked(req.Client)
	r.fanout.BroadcastToRoom(r.name, domain.NewChatMessage(from, req.Text))
	r.publishToPeersLocked(context.Background(), domain.NewChatMessage(from, req.Text))
	return nil
}

func (r *Room) userInfoLocked(id domain.ClientID) domain.RoomUserInfo {
	u, ok := r.users[id]
	if !ok {
		return domain.RoomUserInfo{ID: id}
	}
	return domain.RoomUserInfo{
		ID:         id,
		Name:       u.info.Username,
		IsLoggedIn: u.info.UserID != 0,
		Role:       r.roleForUserLocked(u.info),
		Status:     u.status,
	}
}

// publishEventLocked broadcasts an applied request as a room event. The
// additional payload carries what an undo of that request needs.
func (r *Room) publishEventLocked(ctx context.Context, t domain.RequestType, client domain.ClientID, add *undoAdditional) {
	payload, err := json.Marshal(add)
	if err != nil {
		r.log.Errorw("failed to encode room event", "error", err)
		return
	}
	msg := domain.NewEventMessage(domain.RoomEvent{
		RequestType: t,
		User:        r.userInfoLocked(client),
		Additional:  payload,
	})
	r.fanout.BroadcastToRoom(r.name, msg)
	r.publishToPeersLocked(ctx, msg)
}

// undoAdditional is the event payload recorded for undoable requests.
type undoAdditional struct {
	PrevPosition float64           `json:"prevPosition,omitempty"`
	Video        *domain.QueueItem `json:"video,omitempty"`
	QueueIdx     int               `json:"queueIdx,omitempty"`
}

func (r *Room) handleUndo(req *domain.UndoRequest, actorRole domain.Role) error {
	if req.Event == nil {
		return nil
	}
	// undoing a request needs the same grant as issuing it
	if perm, ok := domain.RequestPermission(req.Event.RequestType); ok {
		if err := r.grants.Check(actorRole, perm); err != nil {
			return err
		}
	}
	var add undoAdditional
	if len(req.Event.Additional) > 0 {
		if err := json.Unmarshal(req.Event.Additional, &add); err != nil {
			return fmt.Errorf("failed to decode undo payload: %w", err)
		}
	}
	switch req.Event.RequestType {
	case domain.RequestSeek:
		r.playbackPosition = add.PrevPosition
		if r.isPlaying {
			now := time.Now()
			r.playbackStart = &now
		}
		r.markDirty("playbackPosition")
	case domain.RequestSkip:
		if add.Video == nil {
			return nil
		}
		if r.currentSource != nil {
			if err := r.queue.PushTop(r.currentSource); err != nil {
				return err
			}
		}
		r.currentSource = add.Video
		r.markDirty("currentSource")
	case domain.RequestAdd:
		if add.Video == nil {
			return nil
		}
		_, _, err := r.queue.Evict(add.Video.VideoID)
		if err != nil && !errors.Is(err, domain.ErrVideoNotFound) {
			return err
		}
	case domain.RequestRemove:
		if add.Video == nil {
			return nil
		}
		idx := add.QueueIdx
		if idx > r.queue.Length() {
			idx = r.queue.Length()
		}
		return r.queue.Insert(add.Video, idx)
	}
	return nil
}

func (r *Room) handleApplySettings(req *domain.ApplySettingsRequest, role domain.Role) error {
	s := req.Settings
	if s.Title != nil {
		if err := r.grants.Check(role, "configure-room.set-title"); err != nil {
			return err
		}
		r.title = *s.Title
		r.markDirty("title")
	}
	if s.Description != nil {
		if err := r.grants.Check(role, "configure-room.set-description"); err != nil {
			return err
		}
		r.description = *s.Description
		r.markDirty("description")
	}
	if s.Visibility != nil {
		if err := r.grants.Check(role, "configure-room.set-visibility"); err != nil {
			return err
		}
		if !s.Visibility.Valid() {
			return fmt.Errorf("invalid visibility %q", *s.Visibility)
		}
		r.visibility = *s.Visibility
		r.markDirty("visibility")
	}
	if s.QueueMode != nil {
		if err := r.grants.Check(role, "configure-room.set-queue-mode"); err != nil {
			return err
		}
		if !s.QueueMode.Valid() {
			return fmt.Errorf("invalid queue mode %q", *s.QueueMode)
		}
		r.queueMode = *s.QueueMode
		r.markDirty("queueMode")
	}
	if s.AutoSkipSegments != nil {
		if err := r.grants.Check(role, "configure-room.set-auto-skip"); err != nil {
			return err
		}
		r.autoSkipSegments = *s.AutoSkipSegments
		r.markDirty("autoSkipSegments")
	}
	if s.EnableVoteSkip != nil {
		if err := r.grants.Check(role, "configure-room.set-queue-mode"); err != nil {
			return err
		}
		r.enableVoteSkip = *s.EnableVoteSkip
		r.markDirty("enableVoteSkip")
	}
	if s.RestoreQueueBehavior != nil {
		if err := r.grants.Check(role, "configure-room.set-queue-mode"); err != nil {
			return err
		}
		r.restoreQueueBehavior = *s.RestoreQueueBehavior
		r.markDirty("restoreQueueBehavior")
	}
	if s.Grants != nil {
		for _, targetRole := range s.Grants.Roles() {
			perm, ok := grantEditPermissions[targetRole]
			if !ok {
				continue
			}
			if err := r.grants.Check(role, perm); err != nil {
				return err
			}
			if err := r.grants.SetRoleGrants(targetRole, s.Grants.GetMask(targetRole)); err != nil {
				return err
			}
		}
		r.markDirty("grants")
	}
	return nil
}

var grantEditPermissions = map[domain.Role]string{
	domain.RoleUnregisteredUser: "configure-room.set-permissions.for-all-unregistered-users",
	domain.RoleRegisteredUser:   "configure-room.set-permissions.for-all-registered-users",
	domain.RoleTrustedUser:      "configure-room.set-permissions.for-trusted-users",
	domain.RoleModerator:        "configure-room.set-permissions.for-moderator",
}

func (r *Room) handlePlayNow(ctx context.Context, req *domain.PlayNowRequest) error {
	if r.currentSource != nil && r.currentSource.VideoID.Equal(req.Video) {
		return nil
	}
	video, err := r.extractor.GetVideoInfo(ctx, req.Video.Service, req.Video.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve video info: %w", err)
	}
	var item *domain.QueueItem
	if _, evicted, err := r.queue.Evict(req.Video); err == nil {
		item = evicted
	} else {
		item = &domain.QueueItem{Video: *video}
	}
	if r.currentSource != nil {
		old := *r.currentSource
		pos := r.realPlaybackPositionLocked()
		old.StartAt = &pos
		if err := r.queue.PushTop(&old); err != nil {
			return err
		}
	}
	r.currentSource = item
	r.playbackPosition = 0
	if r.isPlaying {
		now := time.Now()
		r.playbackStart = &now
	}
	r.markDirty("currentSource")
	r.markDirty("playbackPosition")
	return nil
}

func (r *Room) handlePlaybackSpeed(req *domain.PlaybackSpeedRequest) error {
	if req.Speed <= 0 {
		return fmt.Errorf("invalid playback speed %v", req.Speed)
	}
	// accrue elapsed time at the old speed before switching
	if r.isPlaying && r.playbackStart != nil {
		now := time.Now()
		r.playbackPosition += now.Sub(*r.playbackStart).Seconds() * r.playbackSpeed
		r.playbackStart = &now
	}
	r.playbackSpeed = req.Speed
	r.markDirty("playbackSpeed")
	return nil
}

func (r *Room) handleRestoreQueue(req *domain.RestoreQueueRequest) error {
	if !req.Discard && len(r.prevQueue) > 0 {
		if err := r.queue.Set(r.prevQueue); err != nil {
			return err
		}
	}
	r.prevQueue = nil
	r.markDirty("prevQueue")
	return nil
}

// dequeueNextLocked advances playback according to the queue mode.
func (r *Room) dequeueNextLocked() {
	switch {
	case r.queueMode == domain.QueueModeLoop:
		if r.currentSource != nil {
			if err := r.queue.Enqueue(r.currentSource); err != nil {
				r.log.Warnw("failed to loop current item", "error", err)
			}
		}
		if item := r.queue.Dequeue(); item != nil {
			r.setCurrentSourceLocked(item)
		}
	case r.queueMode == domain.QueueModeDj && r.currentSource != nil:
		// Dj mode restarts the current item instead of advancing
		r.playbackPosition = 0
		if r.isPlaying {
			now := time.Now()
			r.playbackStart = &now
		}
		r.markDirty("playbackPosition")
	default:
		r.setCurrentSourceLocked(r.queue.Dequeue())
	}
	r.votesToSkip = make(map[domain.ClientID]struct{})
	r.markDirty("votesToSkip")
}

func (r *Room) setCurrentSourceLocked(item *domain.QueueItem) {
	r.currentSource = item
	if item != nil {
		r.playbackPosition = item.EffectiveStart()
		delete(r.votes, item.VideoID.Key())
		r.markDirty("voteCounts")
	} else {
		r.playbackPosition = 0
		r.isPlaying = false
		r.playbackStart = nil
		r.markDirty("isPlaying")
	}
	if r.isPlaying {
		now := time.Now()
		r.playbackStart = &now
	}
	r.markDirty("currentSource")
	r.markDirty("playbackPosition")
}

/// Update is the periodic tick: auto-advance finished videos and keep a vote
// mode queue sorted by vote count.
func (r *Room) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentSource != nil && r.currentSource.Length > 0 {
		end := r.currentSource.Length
		if r.currentSource.EndAt != nil {
			end = *r.currentSource.EndAt
		}
		if r.realPlaybackPositionLocked() >= end {
			if r.metrics != nil {
				r.metrics.RecordMediaWatched()
			}
			r.dequeueNextLocked()
		}
	}

	if r.queueMode == domain.QueueModeVote {
		r.queue.OrderBy(func(a, b *domain.QueueItem) bool {
			return len(r.votes[a.VideoID.Key()]) > len(r.votes[b.VideoID.Key()])
		})
	}

	if len(r.dirty) > 0 {
		r.syncLocked(ctx)
	}
	return nil
}

// Sync forces a full state broadcast regardless of the dirty set.
func (r *Room) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, err := r.serializeSyncLocked(r.fullStateLocked())
	if err != nil {
		return err
	}
	r.sendSyncLocked(ctx, payload)
	return nil
}

// fullStateLocked is every public field, used for join and forced syncs.
func (r *Room) fullStateLocked() map[string]any {
	state := make(map[string]any)
	for _, field := range []string{
		"title", "description", "visibility", "queueMode", "currentSource",
		"queue", "isPlaying", "playbackPosition", "playbackSpeed", "users",
		"voteCounts", "votesToSkip", "grants", "enableVoteSkip",
		"restoreQueueBehavior", "autoSkipSegments", "prevQueue",
	} {
		state[field] = r.fieldValueLocked(field)
	}
	return state
}

func (r *Room) fieldValueLocked(field string) any {
	switch field {
	case "title":
		return r.title
	case "description":
		return r.description
	case "visibility":
		return r.visibility
	case "queueMode":
		return r.queueMode
	case "currentSource":
		return r.currentSource
	case "queue":
		return r.queue.Items()
	case "isPlaying":
		return r.isPlaying
	case "playbackPosition":
		return r.realPlaybackPositionLocked()
	case "playbackSpeed":
		return r.playbackSpeed
	case "users":
		return r.userListLocked()
	case "voteCounts":
		counts := make(map[string]int, len(r.votes))
		for key, set := range r.votes {
			counts[key] = len(set)
		}
		return counts
	case "votesToSkip":
		return len(r.votesToSkip)
	case "grants":
		return r.grants
	case "enableVoteSkip":
		return r.enableVoteSkip
	case "restoreQueueBehavior":
		return r.restoreQueueBehavior
	case "autoSkipSegments":
		return r.autoSkipSegments
	case "prevQueue":
		return len(r.prevQueue) > 0
	}
	return nil
}

func (r *Room) serializeSyncLocked(state map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sync state: %w", err)
	}
	return data, nil
}

// syncLocked publishes a delta of the dirty fields and clears the dirty set.
func (r *Room) syncLocked(ctx context.Context) {
	if len(r.dirty) == 0 {
		return
	}
	delta := make(map[string]any, len(r.dirty))
	for field := range r.dirty {
		delta[field] = r.fieldValueLocked(field)
	}
	r.dirty = make(map[string]struct{})
	payload, err := r.serializeSyncLocked(delta)
	if err != nil {
		r.log.Errorw("failed to build sync delta", "error", err)
		return
	}
	r.sendSyncLocked(ctx, payload)
}

func (r *Room) sendSyncLocked(ctx context.Context, payload json.RawMessage) {
	msg := domain.NewSyncMessage(payload)
	r.fanout.BroadcastToRoom(r.name, msg)
	r.publishToPeersLocked(ctx, msg)
	if r.metrics != nil {
		r.metrics.RecordSyncMessage()
	}
	if r.snapshots != nil {
		snapshot, err := json.Marshal(r.snapshotLocked())
		if err == nil {
			if err := r.snapshots.SaveSnapshot(ctx, r.name, snapshot); err != nil {
				r.log.Warnw("failed to cache room snapshot", "error", err)
			}
		}
	}
}

func (r *Room) publishToPeersLocked(ctx context.Context, msg *domain.ServerMessage) {
	if r.syncPub == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.syncPub.PublishSync(ctx, r.name, data); err != nil {
		r.log.Warnw("failed to publish sync to peers", "error", err)
	}
}

// snapshotLocked is the fast-restore form of the room.
func (r *Room) snapshotLocked() ports.RoomRecord {
	return ports.RoomRecord{
		Name:                 r.name,
		Title:                r.title,
		Description:          r.description,
		Visibility:           r.visibility,
		QueueMode:            r.queueMode,
		IsTemporary:          r.isTemporary,
		OwnerUserID:          r.ownerUserID,
		UserRoles:            r.userRolesRecordLocked(),
		PrevQueue:            r.prevQueue,
		RestoreQueueBehavior: r.restoreQueueBehavior,
		AutoSkipSegments:     r.autoSkipSegments,
		EnableVoteSkip:       r.enableVoteSkip,
	}
}

func (r *Room) userRolesRecordLocked() map[domain.Role][]int64 {
	record := make(map[domain.Role][]int64, len(r.userRoles))
	for role, set := range r.userRoles {
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		record[role] = ids
	}
	return record
}

// OnBeforeUnload persists the remaining queue as prevQueue so a later load
// can offer to restore it. The current item goes first with its live
// position as startAt.
func (r *Room) OnBeforeUnload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isTemporary {
		return nil
	}
	var prev []*domain.QueueItem
	if r.currentSource != nil {
		current := *r.currentSource
		pos := r.realPlaybackPositionLocked()
		current.StartAt = &pos
		prev = append(prev, &current)
	}
	prev = append(prev, r.queue.Items()...)
	if len(prev) > 0 {
		r.prevQueue = prev
	}
	r.fanout.BroadcastToRoom(r.name, domain.NewUnloadMessage())
	r.publishToPeersLocked(ctx, domain.NewUnloadMessage())
	return nil
}

// Record returns the persistable form of the room for the room store.
func (r *Room) Record() *ports.RoomRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.snapshotLocked()
	if serialized, err := r.grants.Serialize(); err == nil {
		rec.Grants = serialized
	}
	return &rec
}
