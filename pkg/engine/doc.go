// Package engine адаптирует внешний callback-ориентированный медиа SDK
// к порту callsession.Engine.
//
// Ядро звонка потребляет события движка из одного упорядоченного канала;
// задача адаптера - перевести разрозненные callbacks SDK (вход/выход
// участников, mute, качество сети, состояние соединения) в этот канал,
// не блокируя поток доставки SDK. При переполнении буфера отбрасывается
// самое старое непрочитанное событие: каждое событие лишь сужает
// состояние до последней истины по участнику, поэтому потеря старых
// событий допустима.
//
// Конкретный SDK подключается через интерфейс RTCEngine; тестовая
// реализация порта целиком - в подпакете mockengine.
package engine
