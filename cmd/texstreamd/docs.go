package main

// General API documentation for swaggo. The served document lives in
// internal/httpapi/swagger.json.
//
// @title           texstream API
// @version         1.0
// @description     Admin API of the texture mip streaming daemon.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
