package mcp

import (
	"context"
	"log"
)

// ToolRoute names the server and remote tool serving a logical tool.
type ToolRoute struct {
	Server     string
	RemoteTool string
}

// DefaultToolRoutes returns the built-in routing table, used when the
// configuration does not supply one. Tools not listed fall back to the
// local registry.
func DefaultToolRoutes() map[string]ToolRoute {
	return map[string]ToolRoute{
		"get_calendar_events":  {Server: "calendar", RemoteTool: "list_events"},
		"create_event":         {Server: "calendar", RemoteTool: "create_event"},
		"update_event":         {Server: "calendar", RemoteTool: "update_event"},
		"delete_event":         {Server: "calendar", RemoteTool: "delete_event"},
		"search_emails":        {Server: "email", RemoteTool: "search_messages"},
		"read_email":           {Server: "email", RemoteTool: "get_message"},
		"send_email":           {Server: "email", RemoteTool: "send_message"},
		"get_scheduling_links": {Server: "calendly", RemoteTool: "list_links"},
		"list_calendly_events": {Server: "calendly", RemoteTool: "list_events"},
		"send_whatsapp":        {Server: "whatsapp", RemoteTool: "send_message"},
	}
}

// ValidateRoutes checks each routed tool against the serving server's
// tools/list. Problems are logged, not fatal: a server that is down at
// startup may still come up before its first call, and routing degrades
// to the local registry anyway.
func (p *Pool) ValidateRoutes(ctx context.Context, routes map[string]ToolRoute) {
	byServer := make(map[string][]string)
	remote := make(map[string]string, len(routes))
	for tool, route := range routes {
		byServer[route.Server] = append(byServer[route.Server], tool)
		remote[tool] = route.RemoteTool
	}

	for server, tools := range byServer {
		client, err := p.Get(ctx, server)
		if err != nil {
			log.Printf("[Pool.ValidateRoutes] server unreachable, skipping validation: server=%s, error=%v", server, err)
			continue
		}
		listed, err := client.ListTools(ctx)
		if err != nil {
			log.Printf("[Pool.ValidateRoutes] tools/list failed, skipping validation: server=%s, error=%v", server, err)
			continue
		}
		advertised := make(map[string]bool, len(listed))
		for _, t := range listed {
			advertised[t.Name] = true
		}
		for _, tool := range tools {
			if !advertised[remote[tool]] {
				log.Printf("[Pool.ValidateRoutes] routed tool not advertised by server: tool=%s, remote=%s, server=%s",
					tool, remote[tool], server)
			}
		}
	}
}
