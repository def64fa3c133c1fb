// Package mailgate implements a server-side ESMTP connection engine.
//
// It speaks the wire protocol described in RFC 5321 plus the extensions a
// modern MTA front-end needs: STARTTLS (RFC 3207), AUTH (RFC 4954), PIPELINING
// (RFC 2920), 8BITMIME (RFC 6152), SMTPUTF8 (RFC 6531), and the Postfix
// XCLIENT protocol for trusted front-end handoff. It does not decide what to
// do with accepted mail; that's the job of the Callbacks supplied to New.
//
// # Server
//
//	srv := mailgate.New("mail.example.com").
//		Addr(":25").
//		CertStore(certStore).
//		Auth([]string{"PLAIN", "LOGIN"}).
//		MaxMessageSize(25 * 1024 * 1024).
//		Callbacks(mailgate.Callbacks{
//			OnMailFrom: func(ctx context.Context, s *mailgate.Session, from mailgate.AddressRecord) error {
//				return nil
//			},
//			OnData: func(ctx context.Context, s *mailgate.Session, r io.Reader) (string, error) {
//				_, err := io.Copy(queue, r)
//				return "queued", err
//			},
//		}).
//		Build()
//
//	if err := srv.ListenAndServe(); err != nil && err != mailgate.ErrServerClosed {
//		log.Fatal(err)
//	}
//
// # Behind a load balancer
//
// Enable UseProxy to accept a PROXY protocol v1 header as the first line of
// the connection, and UseXClient to accept Postfix XCLIENT from trusted
// front ends that have already done their own connection-level checks.
package mailgate
