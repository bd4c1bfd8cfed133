package signalling

import (
	"github.com/gofiber/fiber/v2"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/sockets"
)

func (s *Server) setupAdminApi() {
	s.app.Route("/api", func(router fiber.Router) {
		admin := s.adminOnly()

		router.Get("/getPeerConnectionList", append(admin, func(c *fiber.Ctx) error {
			info := s.peers.PeerConnections()
			for id, details := range info {
				_, details.Trickle = s.sockets.Get(sockets.SocketID(id))
				info[id] = details
			}
			countOK("getPeerConnectionList")
			return c.JSON(info)
		})...)

		router.Get("/getStreamList", append(admin, func(c *fiber.Ctx) error {
			countOK("getStreamList")
			return c.JSON(s.peers.Streams())
		})...)

		router.Get("/getVideoDeviceList", append(admin, func(c *fiber.Ctx) error {
			countOK("getVideoDeviceList")
			return c.JSON(s.peers.VideoDevices())
		})...)

		router.Get("/getAudioDeviceList", append(admin, func(c *fiber.Ctx) error {
			countOK("getAudioDeviceList")
			return c.JSON(s.peers.AudioDevices())
		})...)

		router.Get("/getMediaList", append(admin, func(c *fiber.Ctx) error {
			countOK("getMediaList")
			return c.JSON(s.peers.MediaList())
		})...)
	})
}
