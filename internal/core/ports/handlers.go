package ports

import (
	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	CreateRoom(c *gin.Context)
	ListRooms(c *gin.Context)
	GenerateRoomName(c *gin.Context)
	ConnectRoom(c *gin.Context)
}
