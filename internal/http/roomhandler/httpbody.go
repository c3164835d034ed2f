package roomhandler

type CreateRoomBody struct {
	Username string `json:"username" binding:"required" example:"alice"`
} // @name CreateRoomRequest

type CreateRoomResponse struct {
	RoomID string `json:"roomId" example:"k3j9x2"`
} // @name CreateRoomResponse

type JoinRoomBody struct {
	RoomID   string `json:"roomId"   binding:"required" example:"k3j9x2"`
	Username string `json:"username" binding:"required" example:"bob"`
} // @name JoinRoomRequest

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
