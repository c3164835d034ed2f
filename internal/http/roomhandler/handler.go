package roomhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/juhoohuj/triviacircle-backend/internal/rooms"
)

type Handler struct {
	svc rooms.IRoomService
}

func New(svc rooms.IRoomService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/createroom", h.create)
	r.POST("/joinroom", h.join)
	r.GET("/rooms", h.list)
	r.GET("/room/:roomId", h.info)
}

// @Summary		Create a room
// @Description	Creates a room with the caller as sole member and captain.
// @Tags			Rooms
// @Param			body	body		CreateRoomBody	true	"Creator payload"
// @Success		201		{object}	CreateRoomResponse
// @Failure		400		{object}	ErrorResponse
// @Router			/createroom [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateRoomBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	// No socket yet; members created over REST carry no connection id until
	// a websocket binds with the same name.
	roomID, err := h.svc.CreateRoom(ginCtx.Request.Context(), body.Username, "")
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusCreated, CreateRoomResponse{RoomID: roomID})
}

// @Summary		Join a room
// @Description	Adds the user to an existing room and returns the room snapshot.
// @Tags			Rooms
// @Param			body	body		JoinRoomBody	true	"Join payload"
// @Success		200		{object}	rooms.RoomDTO
// @Failure		400		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Router			/joinroom [post]
func (h *Handler) join(ginCtx *gin.Context) {
	var body JoinRoomBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	// Connection-less join: the store keeps any live socket binding for this
	// username, so nothing is ever displaced from the REST path.
	snap, _, err := h.svc.JoinRoom(ginCtx.Request.Context(), body.RoomID, body.Username, "")
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
			return
		}
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, snap)
}

// @Summary		List rooms
// @Description	Returns a consistent snapshot of every room and its members.
// @Tags			Rooms
// @Success		200	{array}	rooms.RoomDTO
// @Router			/rooms [get]
func (h *Handler) list(ginCtx *gin.Context) {
	out, err := h.svc.ListRooms(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Get room details
// @Description	Returns the member list of a single room.
// @Tags			Rooms
// @Param			roomId	path		string	true	"Room ID"	default(k3j9x2)
// @Success		200		{object}	rooms.RoomDTO
// @Failure		404		{object}	ErrorResponse
// @Router			/room/{roomId} [get]
func (h *Handler) info(ginCtx *gin.Context) {
	snap, err := h.svc.GetRoom(ginCtx.Request.Context(), ginCtx.Param("roomId"))
	if err != nil {
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, snap)
}
