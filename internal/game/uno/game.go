package uno

import (
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/udisondev/tempest/internal/dispatcher"
	"github.com/udisondev/tempest/internal/mailbox"
	"github.com/udisondev/tempest/internal/protocol"
)

const (
	maxPlayers        = 4
	minPlayersToStart = 2
	handSize          = 10
	bustThreshold     = 20
)

type player struct {
	id    uint32
	name  string
	cards []Card
}

// Game is one Uno instance. Its run goroutine owns every field; the rest of
// the server talks to it only through the inbox, and it reaches users only
// through their outboxes.
type Game struct {
	id        uint32
	lobbyName string
	deck      Deck
	active    []*player
	finished  []NamedUser
	bust      []NamedUser
	outboxes  map[uint32]*mailbox.Mailbox[protocol.ServerMessage]
	lastCard  Card
	host      uint32
	turn      uint8
	forward   bool
	phase     protocol.GamePhase
	actions   []Action
	rng       *rand.Rand
	inbox     *mailbox.Mailbox[dispatcher.GameMessage]
	events    *mailbox.Mailbox[dispatcher.Event]
	log       *slog.Logger
}

// Create spawns a game actor for the host and returns its registry entry.
// It satisfies dispatcher.GameFactory: JoinedGame is sent to the host
// synchronously, everything else happens on the actor goroutine.
func Create(gameID uint32, host dispatcher.PlayerState, lobbyName string, events *mailbox.Mailbox[dispatcher.Event]) (*dispatcher.GameEntry, error) {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	g := newGame(gameID, host, lobbyName, events, rng)

	if err := host.Outbox.Send(protocol.ServerMessage{
		JoinedGame: &protocol.JoinedGame{LobbyName: lobbyName, Kind: protocol.GameTypeUno},
	}); err != nil {
		g.log.Warn("joined-game notice undeliverable", "user", host.Handle, "err", err)
	}

	entry := &dispatcher.GameEntry{
		Name:        lobbyName,
		PlayerCount: 1,
		Kind:        protocol.GameTypeUno,
		Phase:       protocol.PhaseSetup,
		Inbox:       g.inbox,
	}

	go g.run()

	return entry, nil
}

func newGame(gameID uint32, host dispatcher.PlayerState, lobbyName string, events *mailbox.Mailbox[dispatcher.Event], rng *rand.Rand) *Game {
	deck := NewDeck()
	lastCard, _ := deck.Pickup(rng)

	g := &Game{
		id:        gameID,
		lobbyName: lobbyName,
		deck:      deck,
		lastCard:  lastCard,
		host:      host.Handle,
		forward:   true,
		phase:     protocol.PhaseSetup,
		actions:   []Action{{Kind: ActionInit}, {Kind: ActionInitialCard, Card: lastCard}},
		outboxes:  map[uint32]*mailbox.Mailbox[protocol.ServerMessage]{host.Handle: host.Outbox},
		rng:       rng,
		inbox:     mailbox.New[dispatcher.GameMessage](),
		events:    events,
		log:       slog.With("game", gameID, "lobby", lobbyName),
	}
	g.active = []*player{{id: host.Handle, name: host.Name, cards: g.deck.NewHand(rng)}}

	return g
}

// run is the serial message loop. It exits once no user outbox remains and
// signals GameFinished to the dispatcher.
func (g *Game) run() {
	g.broadcast()

	for msg := range g.inbox.Out() {
		g.handleMessage(msg)
		if len(g.outboxes) == 0 {
			break
		}
	}

	g.inbox.Close()
	go func() { // release the inbox pump; late senders get ErrClosed
		for range g.inbox.Out() {
		}
	}()

	g.notify(dispatcher.GameFinished{ID: g.id})
	g.log.Info("game actor stopped")
}

func (g *Game) handleMessage(msg dispatcher.GameMessage) {
	switch {
	case msg.Join != nil:
		g.userJoin(msg.UserID, msg.Join)
	case msg.Cmd != nil:
		switch msg.Cmd.Op {
		case protocol.GameOpStart:
			g.start(msg.UserID)
		case protocol.GameOpLeave:
			g.leave(msg.UserID)
		case protocol.GameOpRaw:
			g.rawAction(msg.UserID, msg.Cmd.Raw)
		default:
			g.log.Warn("unknown game op", "user", msg.UserID, "op", msg.Cmd.Op)
		}
	}
}

func (g *Game) userJoin(userID uint32, p *dispatcher.PlayerState) {
	if len(g.active) >= maxPlayers || g.phase != protocol.PhaseSetup {
		g.log.Warn("join rejected", "user", userID, "players", len(g.active), "phase", g.phase)
		return
	}

	if err := p.Outbox.Send(protocol.ServerMessage{
		JoinedGame: &protocol.JoinedGame{LobbyName: g.lobbyName, Kind: protocol.GameTypeUno},
	}); err != nil {
		g.log.Warn("joined-game notice undeliverable", "user", userID, "err", err)
	}

	g.outboxes[userID] = p.Outbox
	g.actions = append(g.actions, Action{Kind: ActionUserJoined, Name: p.Name})
	g.active = append(g.active, &player{id: userID, name: p.Name, cards: g.deck.NewHand(g.rng)})

	g.broadcast()

	g.notify(dispatcher.UserJoinedGame{User: userID, Game: g.id})
	g.notify(g.snapshot())
}

func (g *Game) start(userID uint32) {
	if userID != g.host || g.phase != protocol.PhaseSetup {
		g.log.Warn("start rejected", "user", userID, "phase", g.phase)
		return
	}
	if len(g.active) < minPlayersToStart {
		g.log.Warn("start rejected, not enough players", "players", len(g.active))
		return
	}

	g.phase = protocol.PhaseActive
	g.notify(g.snapshot())
	g.broadcast()
}

func (g *Game) rawAction(userID uint32, raw []byte) {
	var action ClientAction
	if err := protocol.Unmarshal(raw, &action); err != nil {
		g.log.Warn("undecodable game action", "user", userID, "err", err)
		return
	}

	if g.phase != protocol.PhaseActive {
		g.log.Warn("game action outside active phase", "user", userID, "phase", g.phase)
		return
	}

	idx := g.activeIndex(userID)
	if idx < 0 {
		g.log.Warn("game action from user not seated", "user", userID)
		return
	}

	switch action.Op {
	case OpPickupCard:
		g.pickupCard(idx)
	case OpPlayCard:
		g.playCard(userID, action.Card)
	default:
		g.log.Warn("unknown game action", "user", userID, "op", action.Op)
	}
}

// pickupCard draws one card for the player at idx. Out-of-turn pickups are
// rejected outright.
func (g *Game) pickupCard(idx int) {
	p := g.active[idx]
	if int(g.turn) != idx {
		g.log.Warn("pickup out of turn", "user", p.id)
		return
	}

	card, ok := g.deck.Pickup(g.rng)
	if !ok {
		g.log.Warn("pickup from exhausted deck", "user", p.id)
		return
	}

	g.actions = append(g.actions, Action{Kind: ActionUserPickup, Name: p.name, Count: 1})
	p.cards = append(p.cards, card)
	g.pushTurn()

	g.broadcast()
}

func (g *Game) playCard(userID uint32, card Card) {
	left, ok := g.submit(userID, card)
	if !ok {
		return
	}
	g.commit(card)

	if left == 0 {
		g.userFinished(userID)
	}
	g.checkBust()

	g.broadcast()
}

// submit validates and applies the hand side of a play: encoding, legality
// against the top of the discard, turn ownership, possession. On success
// the canonical card moves from the hand to the discard pile and the play
// is logged. Returns the remaining hand size.
func (g *Game) submit(userID uint32, played Card) (left int, ok bool) {
	if !played.Valid() {
		g.log.Warn("invalid card encoding", "user", userID, "card", uint8(played))
		return 0, false
	}

	// Wilds arrive carrying the player-chosen colour; hands and deck hold
	// the canonical Red form. The chosen colour survives only through
	// commit's last-card slot.
	card := played.Canonical()
	_, colour, value := card.Decode()

	if !card.IsBlack() {
		_, lastColour, lastValue := g.lastCard.Decode()
		if colour != lastColour && value != lastValue {
			g.log.Warn("card not allowed", "user", userID, "card", card.String(), "last", g.lastCard.String())
			return 0, false
		}
	}

	if int(g.turn) >= len(g.active) {
		g.log.Error("turn index out of range", "turn", g.turn, "players", len(g.active))
		return 0, false
	}
	curr := g.active[g.turn]
	if curr.id != userID {
		g.log.Warn("play out of turn", "user", userID, "turn", curr.id)
		return 0, false
	}

	i := slices.Index(curr.cards, card)
	if i < 0 {
		g.log.Warn("play of card not held", "user", userID, "card", card.String())
		return 0, false
	}
	curr.cards = slices.Delete(curr.cards, i, i+1)

	g.deck.Discard(card)
	g.actions = append(g.actions, Action{Kind: ActionUserPlaceCard, Name: curr.name, Card: card})

	return len(curr.cards), true
}

// commit applies a submitted card to the table: the last-card slot keeps
// the played form (so wilds carry their chosen colour), then the power
// effect advances the turn.
func (g *Game) commit(played Card) {
	g.lastCard = played

	if !played.IsPower() {
		g.pushTurn()
		return
	}

	switch Power(played.Value()) {
	case PlusTwo:
		g.pushTurn()
		g.dealTo(g.active[g.turn], 2)
		g.pushTurn()
	case Skip:
		g.pushTurn()
		g.pushTurn()
	case Reverse:
		g.forward = !g.forward
		g.pushTurn()
	case PlusFour:
		g.pushTurn()
		g.dealTo(g.active[g.turn], 4)
		g.pushTurn()
	case ColourChange:
		g.pushTurn()
	}
}

func (g *Game) dealTo(p *player, n int) {
	for range n {
		card, ok := g.deck.Pickup(g.rng)
		if !ok {
			g.log.Warn("forced pickup from exhausted deck", "user", p.id)
			break
		}
		p.cards = append(p.cards, card)
	}
	g.actions = append(g.actions, Action{Kind: ActionUserPickup, Name: p.name, Count: uint8(n)})
}

// pushTurn advances one step in the current direction, modular over the
// active players.
func (g *Game) pushTurn() {
	n := len(g.active)
	if n == 0 {
		g.turn = 0
		return
	}
	if g.forward {
		if int(g.turn) >= n-1 {
			g.turn = 0
		} else {
			g.turn++
		}
	} else {
		if g.turn == 0 {
			g.turn = uint8(n - 1)
		} else {
			g.turn--
		}
	}
}

func (g *Game) userFinished(userID uint32) {
	idx := g.activeIndex(userID)
	if idx < 0 {
		g.log.Error("finished user not active", "user", userID)
		return
	}

	p := g.active[idx]
	g.active = slices.Delete(g.active, idx, idx+1)
	g.finished = append(g.finished, NamedUser{ID: p.id, Name: p.name})
	g.actions = append(g.actions, Action{Kind: ActionUserFinished, Name: p.name})

	g.turnFromLeaver(idx)
}

// checkBust evicts every active player holding more than bustThreshold
// cards: their hand returns to the discard pile and they move to the bust
// list.
func (g *Game) checkBust() {
	var leavers []int
	kept := g.active[:0]
	for i, p := range g.active {
		if len(p.cards) <= bustThreshold {
			kept = append(kept, p)
			continue
		}
		g.log.Info("user bust", "user", p.id, "cards", len(p.cards))
		g.actions = append(g.actions, Action{Kind: ActionUserBust, Name: p.name})
		g.bust = append(g.bust, NamedUser{ID: p.id, Name: p.name})
		for _, card := range p.cards {
			g.deck.Discard(card)
		}
		leavers = append(leavers, i)
	}
	g.active = kept

	for _, idx := range leavers {
		g.turnFromLeaver(idx)
	}
}

// turnFromLeaver repairs the turn index after removing the player that held
// slot idx, then checks whether the game is over.
func (g *Game) turnFromLeaver(idx int) {
	curr := int(g.turn)

	if curr == len(g.active) {
		if curr > 0 {
			g.turn = uint8(curr - 1)
		}
	} else if curr > idx {
		g.turn--
	}

	g.checkOver()
}

func (g *Game) checkOver() {
	if len(g.active) > 1 || g.phase == protocol.PhaseEnding {
		return
	}
	for _, p := range g.active {
		g.finished = append(g.finished, NamedUser{ID: p.id, Name: p.name})
	}
	g.active = nil
	g.turn = 0
	g.actions = append(g.actions, Action{Kind: ActionGameEnded})
	g.phase = protocol.PhaseEnding
}

func (g *Game) leave(userID uint32) {
	if idx := g.activeIndex(userID); idx >= 0 {
		p := g.active[idx]
		g.active = slices.Delete(g.active, idx, idx+1)
		g.actions = append(g.actions, Action{Kind: ActionUserLeft, Name: p.name})

		// Leaving a running game is a bust; leaving during Setup just
		// vacates the seat.
		if g.phase != protocol.PhaseSetup {
			g.bust = append(g.bust, NamedUser{ID: p.id, Name: p.name})
		}

		delete(g.outboxes, userID)
		g.turnFromLeaver(idx)
	} else {
		if n, ok := findNamed(g.finished, userID); ok {
			g.actions = append(g.actions, Action{Kind: ActionUserLeft, Name: n.Name})
		} else if n, ok := findNamed(g.bust, userID); ok {
			g.actions = append(g.actions, Action{Kind: ActionUserLeft, Name: n.Name})
		}
		delete(g.outboxes, userID)
		g.checkOver()
	}

	g.notify(dispatcher.UserLeftGame{User: userID, Game: g.id})
	g.notify(g.snapshot())
}

// broadcast pushes a per-player snapshot through every outbox, draining the
// action log. Outboxes that turn out to be closed belong to disconnected
// users; they are treated as leavers so the table can finish without them.
func (g *Game) broadcast() {
	state := ClientGameState{
		Phase:         g.phase,
		Actions:       g.actions,
		FinishedUsers: slices.Clone(g.finished),
		BustUsers:     slices.Clone(g.bust),
		ActiveUsers:   make([]ActiveUser, 0, len(g.active)),
		HostUser:      g.host,
		UserTurn:      g.turn,
		Forward:       g.forward,
		LastCard:      EncodeCard(false, Red, 0),
	}
	g.actions = nil

	if g.phase == protocol.PhaseActive {
		state.LastCard = g.lastCard
	}
	for _, p := range g.active {
		state.ActiveUsers = append(state.ActiveUsers, ActiveUser{
			ID:        p.id,
			Name:      p.name,
			CardCount: uint32(len(p.cards)),
		})
	}

	var gone []uint32
	for userID, outbox := range g.outboxes {
		hand := []Card{}
		if g.phase == protocol.PhaseActive {
			if idx := g.activeIndex(userID); idx >= 0 {
				hand = slices.Clone(g.active[idx].cards)
			}
		}

		payload, err := protocol.Marshal(&GameStatePayload{Hand: hand, State: state})
		if err != nil {
			g.log.Error("game state encoding failed", "user", userID, "err", err)
			continue
		}

		if err := outbox.Send(protocol.ServerMessage{GameState: payload}); err != nil {
			gone = append(gone, userID)
		}
	}

	for _, userID := range gone {
		g.log.Info("outbox closed, treating user as left", "user", userID)
		g.leave(userID)
	}
}

func (g *Game) snapshot() dispatcher.Event {
	return dispatcher.UpdateGameServer{
		ID: g.id,
		Snapshot: dispatcher.GameSnapshot{
			Name:        g.lobbyName,
			PlayerCount: uint32(len(g.active)),
			Kind:        protocol.GameTypeUno,
			Phase:       g.phase,
		},
	}
}

func (g *Game) notify(ev dispatcher.Event) {
	if err := g.events.Send(ev); err != nil {
		g.log.Warn("dispatcher event undeliverable", "err", err)
	}
}

func (g *Game) activeIndex(userID uint32) int {
	return slices.IndexFunc(g.active, func(p *player) bool { return p.id == userID })
}

func findNamed(list []NamedUser, userID uint32) (NamedUser, bool) {
	for _, n := range list {
		if n.ID == userID {
			return n, true
		}
	}
	return NamedUser{}, false
}
