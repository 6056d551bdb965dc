package main

import "inverapp/internal/app"

// @title        Inver back office API
// @version      1.0
// @description  Flujos de venta y de pago de comisiones: tareas, asignaciones, comentarios y avisos.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
