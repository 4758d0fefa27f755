// Typeduel Battle Game
//
// Two players race to type the same shuffled sequence of words. One player
// creates a room and shares its id (or QR code); the second joins by id.
// Once both players are on the game screen, a synchronized countdown runs
// and the match starts. Every submission is checked against the shared
// challenge and echoed to the room; the first player to finish the whole
// sequence wins.
//
// Features:
// - Single WebSocket endpoint at /path/ws, rooms multiplexed server-side
// - Numeric room ids drawn from [0,100000) with collision retry
// - Rooms hold exactly two players; late joiners are turned away
// - Per-room countdown ticker, cancelled on completion or teardown
// - Challenges are fresh permutations of the word pool, one per match
// - Exactly one gameOver broadcast per room, first finisher wins
// - Finished rooms reaped after a configurable idle timeout
// - In-browser QR button to share a room id, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	mrand "math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	roomCapacity  = 2
	gameIDRange   = 100000
	maxIDAttempts = 10000
)

// countdownTick is the interval between countdown broadcasts. A variable
// so tests can run the countdown without real seconds passing.
var countdownTick = time.Second

// RoomState tracks a room's position in its lifecycle. Transitions only
// move forward: waitingForGuest → countingDown → inProgress → completed.
type RoomState string

const (
	stateWaitingForGuest RoomState = "waitingForGuest"
	stateCountingDown    RoomState = "countingDown"
	stateInProgress      RoomState = "inProgress"
	stateCompleted       RoomState = "completed"
)

// PlayerProgress holds a player's cursor into the room's challenge.
type PlayerProgress struct {
	ConnectionToken string
	Name            string
	WordIndex       int
}

// Messages coming from clients
type ClientMessage struct {
	Type            string `json:"type"`                      // "joinNewGame", "playerJoinGame", "gameScreenReady", "playerSubmittedAnswer"
	Name            string `json:"name,omitempty"`            // joinNewGame / playerJoinGame
	GameID          int    `json:"gameId"`                    // all but joinNewGame
	ConnectionToken string `json:"connectionToken,omitempty"` // playerSubmittedAnswer
	WordIndex       int    `json:"wordIndex"`                 // playerSubmittedAnswer
	Input           string `json:"input,omitempty"`           // playerSubmittedAnswer
}

// ConnectedMessage is sent to each client immediately after the upgrade,
// carrying the token the transport assigned to the connection.
type ConnectedMessage struct {
	Type            string `json:"type"` // "playerConnected"
	ConnectionToken string `json:"connectionToken"`
}

// RoomCreatedMessage is sent only to the creator of a room.
type RoomCreatedMessage struct {
	Type            string `json:"type"` // "playerCreatedNewRoom"
	GameID          int    `json:"gameId"`
	ConnectionToken string `json:"connectionToken"`
}

// RoomJoinedMessage is broadcast to the room once a guest is admitted.
type RoomJoinedMessage struct {
	Type            string   `json:"type"` // "playerJoinedRoom"
	GameID          int      `json:"gameId"`
	HostName        string   `json:"hostName"`
	GuestName       string   `json:"guestName"`
	ConnectionToken string   `json:"connectionToken"` // the guest's token
	Challenge       []string `json:"challenge"`
}

// CountdownMessage carries one countdown tick.
type CountdownMessage struct {
	Type      string `json:"type"` // "updateGameCountdown"
	Remaining string `json:"remaining"`
}

// StartMessage signals the match has begun.
type StartMessage struct {
	Type string `json:"type"` // "startGame"
}

// AnswerResultMessage echoes a submission back to the room with a verdict.
type AnswerResultMessage struct {
	Type            string `json:"type"` // "playerAnsweredCorrectly" or "playerAnsweredIncorrectly"
	GameID          int    `json:"gameId"`
	ConnectionToken string `json:"connectionToken"`
	WordIndex       int    `json:"wordIndex"`
	Input           string `json:"input"`
	Correct         bool   `json:"correct"`
}

// GameOverMessage announces the winner to the room.
type GameOverMessage struct {
	Type                  string `json:"type"` // "gameOver"
	WinnerConnectionToken string `json:"winnerConnectionToken"`
	WinnerName            string `json:"winnerName"`
}

// ErrorMessage is sent only to the offending client.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn  *websocket.Conn
	send  chan any
	token string
	room  *Room // set once the client creates or joins a room
}

// Room pairs at most two players over a shared challenge.
type Room struct {
	id        int
	state     RoomState
	hostName  string
	guestName string
	challenge []string

	clients map[*Client]bool
	players map[string]*PlayerProgress // keyed by connection token

	mu sync.Mutex

	createdAt  time.Time
	lastActive time.Time

	stopCountdown chan struct{} // non-nil once the countdown is armed
}

func newRoom(id int, hostName string, host *Client) *Room {
	now := time.Now()
	r := &Room{
		id:         id,
		state:      stateWaitingForGuest,
		hostName:   hostName,
		clients:    map[*Client]bool{host: true},
		players:    make(map[string]*PlayerProgress),
		createdAt:  now,
		lastActive: now,
	}
	r.players[host.token] = &PlayerProgress{
		ConnectionToken: host.token,
		Name:            hostName,
	}
	return r
}

// broadcastLocked sends msg to every room member. Assumes r.mu is held.
func (r *Room) broadcastLocked(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			delete(r.clients, client)
			close(client.send)
		}
	}
}

// admit registers the guest as the room's second player, attaches a fresh
// challenge, and broadcasts playerJoinedRoom. On a full room it returns
// ErrRoomFull without touching any state.
func (r *Room) admit(cfg *Config, guest *Client, guestName string, challenge []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateWaitingForGuest || len(r.players) >= roomCapacity {
		return ErrRoomFull
	}

	r.guestName = guestName
	r.challenge = challenge
	r.players[guest.token] = &PlayerProgress{
		ConnectionToken: guest.token,
		Name:            guestName,
	}
	r.clients[guest] = true
	r.state = stateCountingDown
	r.lastActive = time.Now()

	r.broadcastLocked(RoomJoinedMessage{
		Type:            "playerJoinedRoom",
		GameID:          r.id,
		HostName:        r.hostName,
		GuestName:       r.guestName,
		ConnectionToken: guest.token,
		Challenge:       r.challenge,
	})

	logf(cfg, "GAMES: Player %q joined room %d (challenge: %s)", guestName, r.id, trimChallenge(r.challenge))

	return nil
}

// startCountdown arms the room's countdown ticker. Arming an already
// armed room, or a room that is not counting down, is a no-op.
func (r *Room) startCountdown(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateCountingDown || r.stopCountdown != nil {
		return
	}

	r.stopCountdown = make(chan struct{})
	r.lastActive = time.Now()

	go r.runCountdown(cfg, cfg.countdown, r.stopCountdown)
}

// runCountdown ticks once per interval, broadcasting the remaining count
// while it stays at or above 1 and the start signal once it drops below.
// The ticker stops itself after the start signal, and early if stop is
// closed or the room has moved on.
func (r *Room) runCountdown(cfg *Config, from int, stop <-chan struct{}) {
	ticker := time.NewTicker(countdownTick)
	defer ticker.Stop()

	counter := from

	for {
		select {
		case <-ticker.C:
			counter--

			r.mu.Lock()
			if r.state != stateCountingDown {
				r.mu.Unlock()
				return
			}

			if counter < 1 {
				r.state = stateInProgress
				r.lastActive = time.Now()
				r.broadcastLocked(StartMessage{Type: "startGame"})
				r.mu.Unlock()

				logf(cfg, "GAMES: Room %d started", r.id)

				return
			}

			r.broadcastLocked(CountdownMessage{
				Type:      "updateGameCountdown",
				Remaining: strconv.Itoa(counter),
			})
			r.mu.Unlock()

		case <-stop:
			return
		}
	}
}

// submitAnswer checks the submitted input against the challenge word at
// the client-declared index and echoes the verdict to the room. A correct
// answer advances the submitter's cursor; a cursor that has covered the
// whole challenge on the final word wins the match.
func (r *Room) submitAnswer(cfg *Config, c *Client, msg ClientMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateInProgress {
		return
	}

	player, ok := r.players[c.token]
	if !ok {
		return
	}

	if msg.WordIndex < 0 || msg.WordIndex >= len(r.challenge) {
		return
	}

	correct := r.challenge[msg.WordIndex] == msg.Input
	r.lastActive = time.Now()

	result := AnswerResultMessage{
		GameID:          r.id,
		ConnectionToken: c.token,
		WordIndex:       msg.WordIndex,
		Input:           msg.Input,
		Correct:         correct,
	}

	if !correct {
		result.Type = "playerAnsweredIncorrectly"
		r.broadcastLocked(result)

		logf(cfg, "GAMES: Room %d: %q != %q", r.id, r.challenge[msg.WordIndex], msg.Input)

		return
	}

	result.Type = "playerAnsweredCorrectly"
	if player.WordIndex < len(r.challenge) {
		player.WordIndex++
	}
	r.broadcastLocked(result)

	logf(cfg, "GAMES: Room %d: %q == %q", r.id, r.challenge[msg.WordIndex], msg.Input)

	if msg.WordIndex == len(r.challenge)-1 && player.WordIndex == len(r.challenge) {
		r.state = stateCompleted
		r.stopCountdownLocked()

		r.broadcastLocked(GameOverMessage{
			Type:                  "gameOver",
			WinnerConnectionToken: player.ConnectionToken,
			WinnerName:            player.Name,
		})

		logf(cfg, "GAMES: Room %d won by %q", r.id, player.Name)
	}
}

// stopCountdownLocked cancels the countdown ticker if one is running.
// Assumes r.mu is held.
func (r *Room) stopCountdownLocked() {
	if r.stopCountdown != nil {
		close(r.stopCountdown)
		r.stopCountdown = nil
	}
}

// detach drops a disconnected client from the room's broadcast set. The
// player's progress entry stays; there is no reconnect.
func (r *Room) detach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
}

// closeAll cancels the countdown and disconnects all clients of this
// room (used by the reaper).
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopCountdownLocked()

	for c := range r.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(r.clients, c)
	}
}

// GameManager is the process-wide room registry. It owns id allocation
// and lookup; everything inside a room is the room's own business.
type GameManager struct {
	mu    sync.Mutex
	rooms map[int]*Room

	pool        []string
	idleTimeout time.Duration
}

func newGameManager(cfg *Config) *GameManager {
	gm := &GameManager{
		rooms:       make(map[int]*Room),
		pool:        wordPool[:cfg.wordCount],
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

// newGameIDLocked draws candidate ids until one misses every tracked
// room. Assumes gm.mu is held. The retry cap turns an exhausted id space
// into ErrResourceExhausted instead of a spin.
func (gm *GameManager) newGameIDLocked() (int, error) {
	for range maxIDAttempts {
		id := mrand.IntN(gameIDRange)
		if _, exists := gm.rooms[id]; !exists {
			return id, nil
		}
	}
	return 0, ErrResourceExhausted
}

// createRoom allocates an id, registers a room with c as its host, and
// replies to the creator alone with the id and their token.
func (gm *GameManager) createRoom(cfg *Config, c *Client, hostName string) error {
	gm.mu.Lock()
	id, err := gm.newGameIDLocked()
	if err != nil {
		gm.mu.Unlock()
		return err
	}

	room := newRoom(id, hostName, c)
	gm.rooms[id] = room
	gm.mu.Unlock()

	c.room = room
	c.send <- RoomCreatedMessage{
		Type:            "playerCreatedNewRoom",
		GameID:          id,
		ConnectionToken: c.token,
	}

	logf(cfg, "GAMES: Player %q created room %d", hostName, id)

	return nil
}

// lookup returns the room for a game id, or ErrRoomNotFound.
func (gm *GameManager) lookup(gameID int) (*Room, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	room, ok := gm.rooms[gameID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// tryJoin admits c into an existing room as the guest.
func (gm *GameManager) tryJoin(cfg *Config, c *Client, gameID int, guestName string) error {
	room, err := gm.lookup(gameID)
	if err != nil {
		return err
	}

	if err := room.admit(cfg, c, guestName, drawChallenge(gm.pool)); err != nil {
		return err
	}

	c.room = room

	return nil
}

// reaperLoop periodically removes rooms that finished their match and
// have been idle longer than idleTimeout. Rooms still waiting for a
// guest are left alone indefinitely.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, room := range gm.rooms {
			room.mu.Lock()
			done := room.state == stateCompleted && room.lastActive.Before(cutoff)
			room.mu.Unlock()

			if done {
				delete(gm.rooms, id)
				go room.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newConnectionToken mints the per-connection identity clients are
// addressed by for the lifetime of the socket.
func newConnectionToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// serveWSForManager upgrades the connection, assigns it a token, and
// hands it to the read loop.
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:  conn,
			send:  make(chan any, 8),
			token: newConnectionToken(),
		}

		client.send <- ConnectedMessage{
			Type:            "playerConnected",
			ConnectionToken: client.token,
		}

		go client.writePump()
		client.readPump(cfg, gm)
	}
}

func (c *Client) readPump(cfg *Config, gm *GameManager) {
	defer func() {
		if c.room != nil {
			c.room.detach(c)
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "joinNewGame":
			if c.room != nil || msg.Name == "" {
				continue
			}
			if err := gm.createRoom(cfg, c, msg.Name); err != nil {
				c.sendError(err)
			}

		case "playerJoinGame":
			if c.room != nil || msg.Name == "" {
				continue
			}
			if err := gm.tryJoin(cfg, c, msg.GameID, msg.Name); err != nil {
				c.sendError(err)
			}

		case "gameScreenReady":
			if room, err := gm.lookup(msg.GameID); err == nil {
				room.startCountdown(cfg)
			}

		case "playerSubmittedAnswer":
			if room, err := gm.lookup(msg.GameID); err == nil {
				room.submitAnswer(cfg, c, msg)
			}

		default:
			// ignore unknown types
		}
	}
}

// sendError reports an admission or allocation failure privately.
func (c *Client) sendError(err error) {
	select {
	case c.send <- ErrorMessage{
		Type:    "error",
		Message: err.Error(),
	}:
	default:
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code carrying a join link for an existing
// room, so the host can share the id without dictating digits.
func qrHandler(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID, err := strconv.Atoi(ps.ByName("gameid"))
		if err != nil {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		if _, err := gm.lookup(gameID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + path + "?join=" + strconv.Itoa(gameID)

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed battle/index.html
var indexHTML []byte

//go:embed battle/app.css
var battleCSS []byte

//go:embed battle/app.js
var battleJS []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(battleCSS)
	}
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(battleJS)
	}
}

// registerBattleGame sets up routes so that:
//   - $path          → HTML client
//   - $path/ws       → shared WebSocket, rooms multiplexed by game id
//   - $path/qr/:gameid → PNG QR code with a join link for that room
func registerBattleGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(cfg)

	// Client view (HTML)
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	// Shared assets
	mux.GET(cfg.prefix+"/assets/battle/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/battle/app.js", getJsHandler(cfg))

	// Shared websocket
	mux.GET(cfg.prefix+path+"/ws", serveWSForManager(cfg, gm))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/qr/:gameid", qrHandler(cfg, path, gm))
}

// trimChallenge is a display helper for verbose logs.
func trimChallenge(challenge []string) string {
	const shown = 5
	if len(challenge) <= shown {
		return strings.Join(challenge, " ")
	}
	return strings.Join(challenge[:shown], " ") + " …"
}
