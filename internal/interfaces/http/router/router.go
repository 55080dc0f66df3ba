// Package router lays out the versioned HTTP API as a table of route groups.
package router

import (
	"github.com/gin-gonic/gin"
)

// Route binds one method and path to a handler.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Group is a resource's routes under a shared prefix. Middleware applies to
// this group only.
type Group struct {
	Prefix     string
	Middleware []gin.HandlerFunc
	Routes     []Route
}

func (g Group) mount(parent gin.IRouter) {
	rg := parent.Group(g.Prefix, g.Middleware...)
	for _, r := range g.Routes {
		rg.Handle(r.Method, r.Path, r.Handler)
	}
}

// Mount registers groups under /api/<version>.
func Mount(r gin.IRouter, version string, groups ...Group) {
	api := r.Group("/api/" + version)
	for _, g := range groups {
		g.mount(api)
	}
}
