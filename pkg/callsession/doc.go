// Package callsession реализует ядро управления сессией звонка в реальном времени.
//
// Пакет превращает callback-ориентированный медиа движок в наблюдаемый
// жизненный цикл звонка (join → connect → active → reconnect → end) с единым
// владельцем состояния. Все события движка и все команды пользователя
// сериализуются через одну очередь, поэтому ростер участников и локальное
// состояние управления никогда не мутируются конкурентно.
//
// # Основные компоненты
//
//   - Session - машина состояний звонка и единственный владелец мутаций
//   - Roster - авторитетный реестр удалённых участников, редуцируемый из событий движка
//   - CredentialGateway / ServerSync - порты к backend API (см. pkg/gateway)
//   - Engine - порт к медиа движку (см. pkg/engine)
//
// # Модель состояний
//
// Статус звонка проходит через waiting → connecting → connected с ветками
// reconnecting (временная потеря связи, длительность продолжает считаться),
// failed (ошибка попытки подключения) и ended (явный выход или терминальный
// разрыв). В процессе допускается ровно одна активная сессия: повторный
// JoinCall при статусе connecting/connected/reconnecting отклоняется с
// ErrAlreadyInCall без изменения состояния.
//
// # Быстрый старт
//
//	cfg := callsession.DefaultSessionConfig()
//	cfg.Gateway = gatewayClient
//	cfg.Sync = gatewayClient
//	cfg.Engine = engineAdapter
//
//	sess, err := callsession.NewSession(cfg)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	if err := sess.JoinCall(ctx, "session-42", callsession.CallKindVideo); err != nil {
//	    var callErr *callsession.CallError
//	    if errors.As(err, &callErr) {
//	        // callErr.Kind различает permission/credential/engine/network
//	    }
//	}
//
// Session является thread-safe: команды можно вызывать из любых горутин,
// снимки состояния доступны через Snapshot без блокировки очереди.
package callsession
