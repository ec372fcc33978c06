package api

import (
	"net/http"

	"raffleengine/internal/blockchain"
	"raffleengine/internal/permit"
	"raffleengine/internal/raffle"
	"raffleengine/internal/redeem"

	"github.com/gin-gonic/gin"
)

type createRaffleRequest struct {
	Mint            blockchain.Address `json:"mint" binding:"required"`
	Escrow          blockchain.Address `json:"escrow" binding:"required"`
	RequiredTickets uint64             `json:"required_tickets"`
	Deadline        int64              `json:"deadline"`
	raffle.Options
	Nonce  permit.Nonce `json:"nonce"`
	Expiry int64        `json:"expiry"`
	Permit []byte       `json:"permit"`
}

type depositRequest struct {
	Source         blockchain.Address `json:"source" binding:"required"`
	Amount         string             `json:"amount" binding:"required"`
	ExpectedCursor uint64             `json:"expected_cursor"`
}

type slotRequest struct {
	Source blockchain.Address `json:"source" binding:"required"`
	Slots  []uint32           `json:"slots"`
	Nonce  permit.Nonce       `json:"nonce"`
	Expiry int64              `json:"expiry"`
	Permit []byte             `json:"permit"`
}

type joinRequest struct {
	Slots  []uint32       `json:"slots"`
	Assets []redeem.Asset `json:"assets"`
	Nonce  permit.Nonce   `json:"nonce"`
	Expiry int64          `json:"expiry"`
	Permit []byte         `json:"permit"`
}

type settleRequest struct {
	Winner uint64 `json:"winner" binding:"required"`
}

type ticketRequest struct {
	Ticket blockchain.Address `json:"ticket" binding:"required"`
}

type batchRequest struct {
	Tickets []blockchain.Address `json:"tickets" binding:"required"`
}

type prizeRequest struct {
	Mint   blockchain.Address `json:"mint" binding:"required"`
	Source blockchain.Address `json:"source" binding:"required"`
	Escrow blockchain.Address `json:"escrow" binding:"required"`
}

type claimPrizeRequest struct {
	Ticket      blockchain.Address `json:"ticket" binding:"required"`
	Destination blockchain.Address `json:"destination" binding:"required"`
}

type destinationRequest struct {
	Destination blockchain.Address `json:"destination" binding:"required"`
}

func address(c *gin.Context, name string) (blockchain.Address, bool) {
	value, err := blockchain.AddressFromBase58(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return blockchain.Address{}, false
	}
	return value, true
}

// Health reports that the server is up.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetRaffle(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	current, err := s.engine.GetRaffle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRaffleView(current))
}

func (s *Server) ListTickets(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	current, err := s.engine.GetRaffle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	tickets, err := s.engine.ListTickets(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}

	views := make([]ticketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, newTicketView(ticket, current.Decimals))
	}
	c.JSON(http.StatusOK, gin.H{"tickets": views})
}

func (s *Server) CreateRaffle(c *gin.Context) {
	var request createRaffleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	created, err := s.engine.CreateRaffle(c.Request.Context(), caller(c), raffle.CreateRequest{
		Mint:            request.Mint,
		Escrow:          request.Escrow,
		RequiredTickets: request.RequiredTickets,
		Deadline:        request.Deadline,
		Options:         request.Options,
		Nonce:           request.Nonce,
		Expiry:          request.Expiry,
		Permit:          request.Permit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRaffleView(created))
}

func (s *Server) Deposit(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request depositRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	current, err := s.engine.GetRaffle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	amount, err := parseAmount(request.Amount, current.Decimals)
	if err != nil {
		fail(c, err)
		return
	}

	ticket, err := s.engine.Deposit(c.Request.Context(), caller(c), raffle.DepositRequest{
		Raffle:         id,
		Source:         request.Source,
		Amount:         amount,
		ExpectedCursor: request.ExpectedCursor,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTicketView(ticket, current.Decimals))
}

func (s *Server) ReserveSlots(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request slotRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := s.engine.ReserveSlots(c.Request.Context(), caller(c), raffle.SlotRequest{
		Raffle: id,
		Source: request.Source,
		Slots:  request.Slots,
		Nonce:  request.Nonce,
		Expiry: request.Expiry,
		Permit: request.Permit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	s.respondTicket(c, http.StatusCreated, ticket.Raffle, ticket.ID)
}

func (s *Server) JoinWithTickets(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request joinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := s.engine.JoinWithTickets(c.Request.Context(), caller(c), raffle.JoinRequest{
		Raffle: id,
		Slots:  request.Slots,
		Assets: request.Assets,
		Nonce:  request.Nonce,
		Expiry: request.Expiry,
		Permit: request.Permit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	s.respondTicket(c, http.StatusCreated, ticket.Raffle, ticket.ID)
}

func (s *Server) respondTicket(c *gin.Context, code int, raffleID, ticketID blockchain.Address) {
	current, err := s.engine.GetRaffle(c.Request.Context(), raffleID)
	if err != nil {
		fail(c, err)
		return
	}
	ticket, err := s.engine.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(code, newTicketView(ticket, current.Decimals))
}

func (s *Server) RequestDraw(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	request, err := s.engine.RequestDraw(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"raffle":           request.Raffle,
		"request_id":       request.RequestID,
		"required_tickets": request.RequiredTickets,
	})
}

func (s *Server) Settle(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request settleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	settled, err := s.engine.Settle(c.Request.Context(), caller(c), id, request.Winner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRaffleView(settled))
}

func (s *Server) ClaimRefund(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request ticketRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := s.engine.ClaimRefund(c.Request.Context(), caller(c), id, request.Ticket)
	if err != nil {
		fail(c, err)
		return
	}

	current, err := s.engine.GetRaffle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTicketView(ticket, current.Decimals))
}

func (s *Server) RefundBatch(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request batchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	refunded, err := s.engine.RefundBatch(c.Request.Context(), id, request.Tickets)
	if err != nil {
		fail(c, err)
		return
	}
	if refunded == nil {
		refunded = []blockchain.Address{}
	}
	c.JSON(http.StatusOK, gin.H{"refunded": refunded})
}

func (s *Server) ClaimWin(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}
	ticketID, ok := address(c, "ticket")
	if !ok {
		return
	}

	ticket, err := s.engine.ClaimWin(c.Request.Context(), caller(c), id, ticketID)
	if err != nil {
		fail(c, err)
		return
	}
	s.respondTicket(c, http.StatusOK, id, ticket.ID)
}

func (s *Server) SetPrize(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request prizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := s.engine.SetPrize(c.Request.Context(), caller(c), id, raffle.PrizeRequest{
		Mint:   request.Mint,
		Source: request.Source,
		Escrow: request.Escrow,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRaffleView(updated))
}

func (s *Server) ClaimPrize(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request claimPrizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := s.engine.ClaimPrize(c.Request.Context(), caller(c), id, request.Ticket, request.Destination)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRaffleView(updated))
}

func (s *Server) CollectProceeds(c *gin.Context) {
	id, ok := address(c, "raffle")
	if !ok {
		return
	}

	var request destinationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}

	amount, err := s.engine.CollectProceeds(c.Request.Context(), caller(c), id, request.Destination)
	if err != nil {
		fail(c, err)
		return
	}

	current, err := s.engine.GetRaffle(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": formatAmount(amount, current.Decimals)})
}
