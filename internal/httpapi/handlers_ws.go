package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/lumiere-trade/courier/internal/auth"
	"github.com/lumiere-trade/courier/internal/channel"
	"github.com/lumiere-trade/courier/internal/session"
)

// handleWebSocket implements GET /ws/{channel}, driving the C5 state
// machine: VALIDATE -> AUTHORIZE -> ADMIT -> REGISTER -> ACTIVE -> CLEANUP.
//
// Admission-control rejections (shutdown in progress, connection rate
// limit, CPU overload) happen before the WebSocket upgrade and are plain
// HTTP errors, matching ws/internal/shared/handlers_ws.go. Everything
// VALIDATE affects or follows happens after the upgrade and is
// communicated as a WS close code, matching spec §4.5's state diagram
// (whose entry point is "received upgrade").
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIPFromRequest(r)

	if s.coordinator != nil && s.coordinator.IsShuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if s.connRateLimiter != nil && !s.connRateLimiter.Allow(clientIP) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if s.resourceGuard != nil && !s.resourceGuard.ShouldAcceptConnection() {
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	select {
	case s.connSem <- struct{}{}:
	default:
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}
	admitted := false
	defer func() {
		if !admitted {
			<-s.connSem
		}
	}()

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug().Err(err).Str("client_ip", clientIP).Msg("websocket upgrade failed")
		return
	}

	channelName := r.PathValue("channel")

	// VALIDATE
	kind, err := channel.Validate(channelName)
	if err != nil {
		closeAndDrop(conn, session.ClosePolicyViolation, session.ReasonInvalidChannel)
		return
	}

	// AUTHORIZE
	userID, wallet, authorized := s.authorize(r, channelName, kind)
	if !authorized {
		closeAndDrop(conn, session.ClosePolicyViolation, session.ReasonUnauthorized)
		return
	}

	// ADMIT
	if limit := s.cfg.MaxClientsPerChannel; limit > 0 && s.registry.GetChannelCount(channelName) >= limit {
		closeAndDrop(conn, session.ClosePolicyViolation, session.ReasonChannelFull)
		return
	}

	// REGISTER
	sess := session.New(conn, channelName, userID, wallet, s.registry, s.stats, s.logger)
	sess.Register()
	admitted = true
	s.reportChannelsCurrent()

	if s.collectors != nil {
		s.collectors.ConnectionsTotal.Inc()
		s.collectors.ConnectionsCurrent.Inc()
	}
	s.logger.Info().
		Int64("handle", sess.Handle()).
		Str("channel", channelName).
		Str("client_ip", clientIP).
		Msg("subscriber connected")

	go func() {
		sess.RunWritePump()
	}()

	// ACTIVE, then CLEANUP on any exit path. CLEANUP is guaranteed here
	// via defer, regardless of which error or close ends the read loop —
	// this is what upholds I2/I4 on every path leaving ACTIVE.
	defer func() {
		sess.Cleanup()
		<-s.connSem
		if s.collectors != nil {
			s.collectors.ConnectionsCurrent.Dec()
		}
		s.logger.Info().Int64("handle", sess.Handle()).Msg("subscriber disconnected")
	}()
	sess.RunReadPump()
}

// authorize evaluates §4.2's channel-access policy for the subscribe
// path: a presented token is verified and checked against
// verify_channel_access; an absent token falls back to anonymous access
// when REQUIRE_AUTH is false, and is denied outright when it is true.
func (s *Server) authorize(r *http.Request, channelName string, kind channel.Kind) (userID, wallet string, ok bool) {
	token := extractToken(r)

	if token == "" {
		if s.cfg.RequireAuth {
			return "", "", false
		}
		return "", "", auth.AnonymousChannelAccess(kind)
	}

	if s.verifier == nil {
		return "", "", false
	}
	claims, err := s.verifier.VerifyToken(token)
	if err != nil {
		return "", "", false
	}
	if !auth.VerifyChannelAccess(claims.UserID, channelName, kind) {
		return "", "", false
	}
	return claims.UserID, claims.WalletAddress, true
}

func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		return strings.TrimPrefix(authHeader, prefix)
	}
	return ""
}

// closeAndDrop sends a close frame on an already-upgraded connection that
// failed VALIDATE/AUTHORIZE/ADMIT, before any registry state exists for it.
func closeAndDrop(conn net.Conn, code session.CloseCode, reason string) {
	tmp := session.New(conn, "", "", "", nil, nil, zerolog.Nop())
	tmp.Close(code, reason)
}

// clientIPFromRequest extracts the caller's address, preferring
// X-Forwarded-For (set by a fronting proxy) over the raw remote address.
func clientIPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
