package gee

import (
	"sort"
	"strings"
)

type HandlerFunc func(*Context)

// roots 按 method 分树，handler 挂在叶子节点上
type router struct {
	roots map[string]*node
}

func newRouter() *router {
	return &router{roots: make(map[string]*node)}
}

func parsePattern(pattern string) []string {
	parts := make([]string, 0, 4)
	for _, item := range strings.Split(pattern, "/") {
		if item == "" {
			continue
		}
		parts = append(parts, item)
		if item[0] == '*' {
			break
		}
	}
	return parts
}

func (r *router) addRoute(method string, pattern string, handlers ...HandlerFunc) {
	if len(handlers) == 0 {
		panic("gee: addRoute requires at least one handler")
	}
	root, ok := r.roots[method]
	if !ok {
		root = &node{}
		r.roots[method] = root
	}
	leaf := root.insert(pattern, parsePattern(pattern), 0)
	leaf.handlers = append([]HandlerFunc(nil), handlers...)
}

func (r *router) getRoute(method string, path string) (*node, map[string]string) {
	root, ok := r.roots[method]
	if !ok {
		return nil, nil
	}
	searchParts := parsePattern(path)
	n := root.search(searchParts, 0)
	if n == nil {
		return nil, nil
	}

	params := make(map[string]string)
	for index, part := range parsePattern(n.pattern) {
		switch part[0] {
		case ':':
			params[part[1:]] = searchParts[index]
		case '*':
			if len(part) > 1 {
				params[part[1:]] = strings.Join(searchParts[index:], "/")
			}
			return n, params
		}
	}
	return n, params
}

func (r *router) handle(c *Context) {
	if n, params := r.getRoute(c.Method, c.Path); n != nil {
		c.Params = params
		c.RoutePattern = n.pattern
		c.handlers = append(c.handlers, n.handlers...)
	} else if allow := r.AllowedMethod(c.Path); len(allow) > 0 {
		c.SetHeader("Allow", strings.Join(allow, ","))
		c.handlers = append(c.handlers, c.engine.noMethod...)
	} else {
		c.handlers = append(c.handlers, c.engine.noRoute...)
	}
	c.Next()
}

func (r *router) AllowedMethod(path string) (allow []string) {
	for method := range r.roots {
		if n, _ := r.getRoute(method, path); n != nil {
			allow = append(allow, method)
		}
	}
	sort.Strings(allow)
	return allow
}
