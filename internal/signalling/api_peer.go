package signalling

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
)

const HeaderPeerID = "X-Peer-Id"

func (s *Server) setupPeerApi() {
	s.app.Route("/api", func(router fiber.Router) {
		router.Get("/getIceServers", s.requireToken, func(c *fiber.Ctx) error {
			countOK("getIceServers")
			return c.JSON(s.peers.IceServers(c.IP()))
		})

		createOffer := func(c *fiber.Ctx) error {
			peerID := c.Query("peerid")
			if peerID == "" {
				peerID = uuid.NewString()
			}
			c.Set(HeaderPeerID, peerID)

			desc, err := s.peers.CreateOffer(c.UserContext(), peerID, c.Query("url"), c.Query("audiourl"), c.Query("options"))
			if err != nil {
				return fail(c, "createOffer", err)
			}
			countOK("createOffer")
			return c.JSON(desc)
		}
		router.Get("/createOffer", s.requireToken, createOffer)
		router.Post("/createOffer", s.requireToken, createOffer)

		router.Post("/setAnswer", s.requireToken, func(c *fiber.Ctx) error {
			desc, err := api.ParseSessionDescription(c.Body())
			if err != nil {
				return fail(c, "setAnswer", err)
			}
			if err := s.peers.SetAnswer(c.Query("peerid"), desc); err != nil {
				return fail(c, "setAnswer", err)
			}
			countOK("setAnswer")
			return c.JSON(fiber.Map{})
		})

		router.Post("/call", s.requireToken, func(c *fiber.Ctx) error {
			peerID := c.Query("peerid")
			if peerID == "" {
				return fail(c, "call", fmt.Errorf("%w: peerid is required", api.ErrMalformedMessage))
			}
			req, err := api.ParseCallRequest(c.Body())
			if err != nil {
				return fail(c, "call", err)
			}

			desc, err := s.peers.Call(c.UserContext(), peerID, c.Query("url"), c.Query("audiourl"), c.Query("options"), req)
			if err != nil {
				return fail(c, "call", err)
			}
			countOK("call")
			return c.JSON(desc)
		})

		hangUp := func(c *fiber.Ctx) error {
			hungUp := s.peers.HangUp(c.Query("peerid"))
			if hungUp {
				countOK("hangup")
			} else {
				countError("hangup")
			}
			return c.JSON(hungUp)
		}
		router.Get("/hangup", s.requireToken, hangUp)
		router.Post("/hangup", s.requireToken, hangUp)

		router.Post("/addIceCandidate", s.requireToken, func(c *fiber.Ctx) error {
			candidate, err := api.ParseIceCandidate(c.Body())
			if err != nil {
				countError("addIceCandidate")
				return c.Status(fiber.StatusBadRequest).JSON(false)
			}
			added := s.peers.AddIceCandidate(c.Query("peerid"), candidate)
			if added {
				countOK("addIceCandidate")
			} else {
				countError("addIceCandidate")
			}
			return c.JSON(added)
		})

		router.Get("/getIceCandidate", s.requireToken, func(c *fiber.Ctx) error {
			candidates, found := s.peers.IceCandidates(c.Query("peerid"))
			if !found {
				countError("getIceCandidate")
				return c.Status(fiber.StatusNotFound).JSON([]api.IceCandidate{})
			}
			countOK("getIceCandidate")
			return c.JSON(candidates)
		})
	})
}
