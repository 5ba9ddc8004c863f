package embed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
	"text/template"
)

// scriptTemplate is the tenant's embed.js. Values are inserted as JSON
// string literals.
var scriptTemplate = template.Must(template.New("embed.js").Parse(`(function() {
  'use strict';

  // NextMonth SmartSite Embed Script
  var TENANT_ID = {{.TenantID}};
  var BASE_URL = {{.BaseURL}};
  var SESSION_ID = generateSessionId();

  function generateSessionId() {
    var existing = sessionStorage.getItem('nextmonth_session_id');
    if (existing) return existing;

    var sessionId = 'sess_' + Math.random().toString(36).substr(2, 9) + '_' + Date.now();
    sessionStorage.setItem('nextmonth_session_id', sessionId);
    return sessionId;
  }

  function post(path, body) {
    return fetch(BASE_URL + path, {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(body)
    });
  }

  function trackPageView() {
    post('/api/analytics/page-view', {
      tenantId: TENANT_ID,
      sessionId: SESSION_ID,
      pageUrl: window.location.href,
      pageTitle: document.title || null,
      referrer: document.referrer || null
    }).catch(function(error) {
      console.warn('NextMonth SmartSite: Failed to track page view', error);
    });
  }

  function trackEvent(eventName, eventData) {
    if (typeof eventName !== 'string') {
      console.warn('NextMonth SmartSite: eventName must be a string');
      return;
    }
    post('/api/analytics/event', {
      tenantId: TENANT_ID,
      sessionId: SESSION_ID,
      pageUrl: window.location.href,
      eventName: eventName,
      eventData: eventData || null
    }).catch(function(error) {
      console.warn('NextMonth SmartSite: Failed to track event', error);
    });
  }

  function createChatWidget() {
    var chat = document.createElement('div');
    chat.id = 'nextmonth-chat-widget';
    chat.style.cssText =
      'position: fixed; bottom: 20px; right: 20px; width: 60px; height: 60px; ' +
      'background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); ' +
      'border-radius: 50%; cursor: pointer; z-index: 9999; ' +
      'display: flex; align-items: center; justify-content: center; ' +
      'box-shadow: 0 4px 12px rgba(0,0,0,0.15); transition: all 0.3s ease;';
    chat.innerHTML =
      '<svg width="24" height="24" fill="white" viewBox="0 0 24 24">' +
      '<path d="M20 2H4c-1.1 0-2 .9-2 2v12c0 1.1.9 2 2 2h4l4 4 4-4h4c1.1 0 2-.9 2-2V4c0-1.1-.9-2-2-2z"/>' +
      '</svg>';
    chat.addEventListener('click', function() {
      trackEvent('chat_widget_clicked');
    });
    chat.addEventListener('mouseenter', function() { this.style.transform = 'scale(1.1)'; });
    chat.addEventListener('mouseleave', function() { this.style.transform = 'scale(1)'; });
    document.body.appendChild(chat);
  }

  function init() {
    trackPageView();
    createChatWidget();
    window.NextMonthSmartSite = {
      trackEvent: trackEvent,
      trackPageView: trackPageView,
      tenantId: TENANT_ID,
      sessionId: SESSION_ID
    };
  }

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', init);
  } else {
    init();
  }
})();
`))

// jsString encodes s as a JavaScript string literal. json.Marshal escapes
// <, > and & so the value cannot close a surrounding script element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Script renders the embed script for tenantID reporting to baseURL.
func Script(tenantID, baseURL string) (string, error) {
	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, struct{ TenantID, BaseURL string }{
		TenantID: jsString(tenantID),
		BaseURL:  jsString(strings.TrimRight(baseURL, "/")),
	})
	if err != nil {
		return "", fmt.Errorf("render embed script: %w", err)
	}
	return buf.String(), nil
}

// Code returns the script tag a site owner pastes into their pages.
func Code(tenantID, baseURL string) string {
	src := strings.TrimRight(baseURL, "/") + "/embed.js?tenantId=" + url.QueryEscape(tenantID)
	return fmt.Sprintf(`<script src="%s" async></script>`, html.EscapeString(src))
}
