/*
Package tls terminates HTTPS on the proxy listener.

The certificate pair is loaded once at startup and reloaded whenever either
file is rewritten, so that renewed certificates take effect without a
restart:

	certs, err := tls.NewReloader(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	if err != nil {
		return err
	}
	go certs.Watch(ctx)

	tlsConfig, err := tls.NewServerConfig(cfg.Server.TLS, certs)
	if err != nil {
		return err
	}
	ln = cryptotls.NewListener(ln, tlsConfig)

A reload that fails (a half-written file, an expired certificate) is logged
and the previous certificate stays in use.
*/
package tls
